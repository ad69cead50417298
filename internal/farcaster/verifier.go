package farcaster

import (
	"context"
	"errors"
	"log/slog"

	"github.com/castquest/castquest-backend/internal/domain"
)

type checkFunc func(ctx context.Context, targetData string, fid int64) (bool, error)

// Verifier answers "did this user perform the task's action" with one
// strategy per task type. Verification is conservative: any provider
// error or not-found counts as unverified, never as a failure — the
// caller must not claim-authorize on an error, but an outage must not
// reject anyone either.
type Verifier struct {
	client *Client
	checks map[domain.TaskType]checkFunc
}

func NewVerifier(client *Client) *Verifier {
	v := &Verifier{client: client}
	v.checks = map[domain.TaskType]checkFunc{
		domain.TaskTypeFollowUser:  v.checkFollow,
		domain.TaskTypeLikeCast:    v.checkLike,
		domain.TaskTypeRecastCast:  v.checkRecast,
		domain.TaskTypeJoinChannel: v.checkChannel,
	}
	return v
}

func (v *Verifier) Verify(ctx context.Context, taskType domain.TaskType, targetData string, fid int64) bool {
	check, ok := v.checks[taskType]
	if !ok {
		return false
	}
	verified, err := check(ctx, targetData, fid)
	if err != nil {
		slog.Warn("verification check failed, treating as unverified",
			"task_type", taskType,
			"fid", fid,
			"error", err,
		)
		return false
	}
	return verified
}

// TargetExists is an existence-only lookup used at task creation. Unlike
// Verify, provider errors propagate so creation can fail retryably.
func (v *Verifier) TargetExists(ctx context.Context, taskType domain.TaskType, targetData string) (bool, error) {
	var err error
	switch taskType {
	case domain.TaskTypeFollowUser:
		_, err = v.client.UserByUsername(ctx, targetData, 0)
	case domain.TaskTypeLikeCast, domain.TaskTypeRecastCast:
		_, err = v.client.CastByHash(ctx, targetData, 0)
	case domain.TaskTypeJoinChannel:
		_, err = v.client.ChannelByID(ctx, targetData, 0)
	default:
		return false, nil
	}
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Profile returns the follower count and verified standing used for join
// requirement checks.
func (v *Verifier) Profile(ctx context.Context, fid int64) (followers int, verified bool, err error) {
	user, err := v.client.UserByFID(ctx, fid)
	if err != nil {
		return 0, false, err
	}
	return user.FollowerCount, user.PowerBadge, nil
}

func (v *Verifier) checkFollow(ctx context.Context, targetData string, fid int64) (bool, error) {
	target, err := v.client.UserByUsername(ctx, targetData, fid)
	if err != nil {
		return false, err
	}
	return target.ViewerContext.Following, nil
}

func (v *Verifier) checkLike(ctx context.Context, targetData string, fid int64) (bool, error) {
	cast, err := v.client.CastByHash(ctx, targetData, fid)
	if err != nil {
		return false, err
	}
	return cast.ViewerContext.Liked, nil
}

func (v *Verifier) checkRecast(ctx context.Context, targetData string, fid int64) (bool, error) {
	cast, err := v.client.CastByHash(ctx, targetData, fid)
	if err != nil {
		return false, err
	}
	return cast.ViewerContext.Recasted, nil
}

// Channel membership or merely following the channel both satisfy
// JOIN_CHANNEL.
func (v *Verifier) checkChannel(ctx context.Context, targetData string, fid int64) (bool, error) {
	channel, err := v.client.ChannelByID(ctx, targetData, fid)
	if err != nil {
		return false, err
	}
	return channel.ViewerContext.Member || channel.ViewerContext.Following, nil
}
