package promotion

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-atelier/internal/pricing"
)

func TestParseRejectsFreeShippingWithFilters(t *testing.T) {
	_, err := Parse(Definition{Code: "ship", Type: TypeFreeShipping, Category: ptr(pricing.KindInStock)})
	require.ErrorIs(t, err, ErrInvalidFilterCombination)
	require.Equal(t, "INVALID_FILTER_COMBINATION", Kind(err))

	_, err = Parse(Definition{Code: "ship", Type: TypeFreeShipping, ArticleID: ptr("a")})
	require.ErrorIs(t, err, ErrInvalidFilterCombination)
}

func TestParseValidation(t *testing.T) {
	cases := map[string]Definition{
		"missing code":       {Type: TypeFixed, Discount: dec("5")},
		"unknown type":       {Code: "X", Type: "bogo", Discount: dec("5")},
		"percent over 100":   {Code: "X", Type: TypePercentage, Discount: dec("100.01")},
		"zero percent":       {Code: "X", Type: TypePercentage, Discount: dec("0")},
		"negative fixed":     {Code: "X", Type: TypeFixed, Discount: dec("-1")},
		"gift card category": {Code: "X", Type: TypeFixed, Discount: dec("5"), Category: ptr(pricing.KindGiftCard)},
		"unknown category":   {Code: "X", Type: TypeFixed, Discount: dec("5"), Category: ptr(pricing.Kind("fabric"))},
		"zero usage limit":   {Code: "X", Type: TypeFixed, Discount: dec("5"), UsageLimit: ptr(0)},
		"negative minimum":   {Code: "X", Type: TypeFixed, Discount: dec("5"), MinAmount: ptr(dec("-1"))},
	}
	for name, def := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(def)
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrInvalidDefinition), "got %v", err)
		})
	}
}

func TestParseNormalizesCode(t *testing.T) {
	code := mustParse(t, Definition{Code: "  summer10 ", Type: TypePercentage, Discount: dec("10")})
	require.Equal(t, "SUMMER10", code.Code)
	pct, ok := code.Discount.(Percentage)
	require.True(t, ok)
	require.Equal(t, "10", pct.Percent.String())
}

func TestCodeJSONInlinesDefinition(t *testing.T) {
	code := mustParse(t, Definition{Code: "FIXED", Type: TypeFixed, Discount: dec("7.5"), UsageLimit: ptr(3)})
	code.Used = 2
	raw, err := json.Marshal(code)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	require.Equal(t, "FIXED", got["code"])
	require.Equal(t, "fixed", got["type"])
	require.Equal(t, "7.5", got["discount"])
	require.EqualValues(t, 3, got["usageLimit"])
	require.EqualValues(t, 2, got["used"])
	require.NotContains(t, got, "category")
}
