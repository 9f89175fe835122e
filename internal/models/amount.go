package models

import (
	"fmt"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Amount is a monetary value with cent precision on the wire. It is stored
// as a BSON Decimal128 and rendered in JSON as a fixed two-digit string.
type Amount struct {
	decimal.Decimal
}

// NewAmount wraps d without rounding it.
func NewAmount(d decimal.Decimal) Amount {
	return Amount{Decimal: d}
}

// MustAmount parses s and panics on malformed input. Intended for constants
// and tests.
func MustAmount(s string) Amount {
	return Amount{Decimal: decimal.RequireFromString(s)}
}

func (a Amount) String() string {
	return a.StringFixed(2)
}

// MarshalBSONValue writes the exact value as Decimal128. Rounding to cents
// happens only when rendering.
func (a Amount) MarshalBSONValue() (bsontype.Type, []byte, error) {
	d, err := primitive.ParseDecimal128(a.Decimal.String())
	if err != nil {
		return 0, nil, fmt.Errorf("encode amount %s: %w", a.Decimal, err)
	}
	return bson.MarshalValue(d)
}

// UnmarshalBSONValue accepts Decimal128, numeric and string values, so
// documents written by older clients (plain doubles) still decode.
func (a *Amount) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	switch t {
	case bsontype.Null, bsontype.Undefined:
		a.Decimal = decimal.Zero
		return nil
	case bsontype.Decimal128:
		var value primitive.Decimal128
		if err := bson.UnmarshalValue(t, data, &value); err != nil {
			return err
		}
		parsed, err := decimal.NewFromString(value.String())
		if err != nil {
			return fmt.Errorf("decode amount %s: %w", value, err)
		}
		a.Decimal = parsed
		return nil
	case bsontype.Double:
		var value float64
		if err := bson.UnmarshalValue(t, data, &value); err != nil {
			return err
		}
		a.Decimal = decimal.NewFromFloat(value)
		return nil
	case bsontype.Int32, bsontype.Int64:
		var value int64
		if err := bson.UnmarshalValue(t, data, &value); err != nil {
			return err
		}
		a.Decimal = decimal.NewFromInt(value)
		return nil
	case bsontype.String:
		var value string
		if err := bson.UnmarshalValue(t, data, &value); err != nil {
			return err
		}
		parsed, err := decimal.NewFromString(value)
		if err != nil {
			return fmt.Errorf("decode amount %q: %w", value, err)
		}
		a.Decimal = parsed
		return nil
	default:
		return fmt.Errorf("cannot decode %s into Amount", t)
	}
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.StringFixed(2) + `"`), nil
}

// UnmarshalJSON accepts both 12.5 and "12.50".
func (a *Amount) UnmarshalJSON(data []byte) error {
	return a.Decimal.UnmarshalJSON(data)
}
