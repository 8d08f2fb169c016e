package a2s

import (
	"errors"
	"reflect"
	"testing"

	"github.com/woozymasta/srcquery/internal/fake"
)

func TestDecodeRules(t *testing.T) {
	payload := fake.NewPayload(fake.RulesHeader).
		Uint16(3).
		String("mp_timelimit").String("30").
		String("sv_tags").String("").
		String("mp_timelimit").String("45").
		Bytes()

	got, err := DecodeRules(payload)
	if err != nil {
		t.Fatalf("DecodeRules: %v", err)
	}

	want := []Rule{
		{Name: "mp_timelimit", Value: "30"},
		{Name: "sv_tags", Value: ""},
		{Name: "mp_timelimit", Value: "45"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("DecodeRules = %+v, want %+v", got, want)
	}
}

func TestDecodeRulesTruncated(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{
			name:    "missing pairs",
			payload: fake.NewPayload(fake.RulesHeader).Uint16(3).String("a").String("1").Bytes(),
		},
		{
			name:    "missing value",
			payload: fake.NewPayload(fake.RulesHeader).Uint16(1).String("a").Bytes(),
		},
		{
			name:    "value without terminator",
			payload: []byte{0x45, 0x01, 0x00, 's', 'v', 0x00, '1', '2'},
		},
		{
			name:    "name without terminator",
			payload: fake.NewPayload(fake.RulesHeader).Uint16(2).String("a").String("1").Byte('b').Bytes(),
		},
		{
			name:    "missing count",
			payload: []byte{0x45, 0x01},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rules, err := DecodeRules(tt.payload)
			if !errors.Is(err, ErrTruncated) {
				t.Errorf("err = %v, want ErrTruncated", err)
			}
			if rules != nil {
				t.Errorf("partial rules returned: %+v", rules)
			}
		})
	}
}

func TestDecodeRulesHeader(t *testing.T) {
	_, err := DecodeRules([]byte{0x41, 0x00, 0x00})

	var hErr *HeaderError
	if !errors.As(err, &hErr) || hErr.Expected != 0x45 || hErr.Found != 0x41 {
		t.Errorf("err = %v, want HeaderError{0x45, 0x41}", err)
	}
}
