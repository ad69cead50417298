package domain

import (
	"encoding/json"
	"fmt"
	"math/big"
)

// BigInt marshals a smallest-unit amount as a decimal string so JSON
// callers never lose precision to float64.
type BigInt struct {
	*big.Int
}

func NewBigInt(i *big.Int) BigInt {
	return BigInt{i}
}

func (b BigInt) MarshalJSON() ([]byte, error) {
	if b.Int == nil {
		return []byte(`"0"`), nil
	}
	return json.Marshal(b.String())
}

func (b *BigInt) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	i, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return fmt.Errorf("invalid integer amount %q", s)
	}
	b.Int = i
	return nil
}
