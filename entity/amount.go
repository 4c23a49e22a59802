package entity

import (
	"fmt"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// Amount is a monetary value. It is stored as a decimal string in mongo
// documents so the database never holds a binary float representation.
type Amount struct {
	decimal.Decimal
}

func NewAmount(value decimal.Decimal) Amount {
	return Amount{Decimal: value}
}

func AmountFromString(value string) (Amount, error) {
	parsed, err := decimal.NewFromString(value)
	if err != nil {
		return Amount{}, fmt.Errorf("parse amount: %v", err)
	}
	return Amount{Decimal: parsed}, nil
}

// AmountFromMinorUnits converts a processor amount, expressed in the
// currency's minor unit, back to a decimal value (1234 -> 12.34).
func AmountFromMinorUnits(value string) (Amount, error) {
	parsed, err := decimal.NewFromString(value)
	if err != nil {
		return Amount{}, fmt.Errorf("parse amount: %v", err)
	}
	return Amount{Decimal: parsed.Shift(-2)}, nil
}

// MinorUnits renders the amount the way the processor expects it in a
// payment request: an integer count of the currency's minor unit.
func (a Amount) MinorUnits() string {
	return a.Shift(2).Round(0).String()
}

var (
	_ bson.ValueMarshaler   = Amount{}
	_ bson.ValueUnmarshaler = (*Amount)(nil)
)

func (a Amount) MarshalBSONValue() (bsontype.Type, []byte, error) {
	return bson.MarshalValue(a.String())
}

func (a *Amount) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	raw := bson.RawValue{Type: t, Value: data}
	var value string
	if err := raw.Unmarshal(&value); err != nil {
		return err
	}
	if value == "" {
		a.Decimal = decimal.Zero
		return nil
	}
	parsed, err := decimal.NewFromString(value)
	if err != nil {
		return err
	}
	a.Decimal = parsed
	return nil
}
