package ml

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoerce(t *testing.T) {
	tests := []struct {
		name    string
		in      Value
		typ     FieldType
		want    Value
		wantErr bool
	}{
		{name: "float from string", in: StringValue(" 40.71 "), typ: FieldFloat, want: NumberValue(40.71)},
		{name: "float passthrough", in: NumberValue(1.5), typ: FieldFloat, want: NumberValue(1.5)},
		{name: "float garbage", in: StringValue("abc"), typ: FieldFloat, wantErr: true},
		{name: "float rejects Inf", in: StringValue("Inf"), typ: FieldFloat, wantErr: true},
		{name: "float rejects -Infinity", in: StringValue("-Infinity"), typ: FieldFloat, wantErr: true},
		{name: "float rejects NaN", in: StringValue("NaN"), typ: FieldFloat, wantErr: true},
		{name: "int rejects Inf", in: StringValue("+Inf"), typ: FieldInt, wantErr: true},
		{name: "int from string", in: StringValue("3"), typ: FieldInt, want: NumberValue(3)},
		{name: "int from 2.0", in: StringValue("2.0"), typ: FieldInt, want: NumberValue(2)},
		{name: "int rejects fraction", in: StringValue("2.5"), typ: FieldInt, wantErr: true},
		{name: "int rejects fractional number", in: NumberValue(1.25), typ: FieldInt, wantErr: true},
		{name: "string from number", in: NumberValue(7), typ: FieldString, want: StringValue("7")},
		{name: "timestamp", in: StringValue("2024-06-15T08:30:00"), typ: FieldTimestamp},
		{name: "timestamp garbage", in: StringValue("noon"), typ: FieldTimestamp, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Coerce("f", tt.in, tt.typ)
			if tt.wantErr {
				var ve *ValidationError
				require.True(t, errors.As(err, &ve), "got %v", err)
				assert.Equal(t, "f", ve.Field)
				return
			}
			require.NoError(t, err)
			if tt.typ == FieldTimestamp {
				assert.Equal(t, KindTimestamp, got.Kind)
				assert.Equal(t, 8, got.Time.Hour())
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValueMarshalJSON(t *testing.T) {
	data, err := json.Marshal(RawRecord{"n": NumberValue(1.5), "s": StringValue("x")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":1.5,"s":"x"}`, string(data))
}

func TestErrorClassification(t *testing.T) {
	assert.True(t, IsClientError(&ValidationError{Field: "a"}))
	assert.True(t, IsClientError(&InvalidInputError{Field: "a"}))
	assert.True(t, IsClientError(&UnsupportedFormatError{}))
	assert.False(t, IsClientError(&PredictionError{Err: errors.New("boom")}))
	assert.False(t, IsClientError(&ModelUnavailableError{Path: "m", Err: errors.New("gone")}))

	assert.Equal(t, "derive", Stage(&InvalidInputError{Field: "a"}))
	assert.Equal(t, "load", Stage(&ModelUnavailableError{}))
	assert.Equal(t, "pickup_latitude", ErrorField(&InvalidInputError{Field: "pickup_latitude"}))
}

func TestProfileByName(t *testing.T) {
	p, err := ProfileByName("")
	require.NoError(t, err)
	assert.Equal(t, "fare_usd", p.OutputKey)

	p, err = ProfileByName("House")
	require.NoError(t, err)
	assert.Equal(t, "price_usd", p.OutputKey)

	_, err = ProfileByName("boats")
	assert.Error(t, err)
}
