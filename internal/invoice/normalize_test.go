package invoice

import (
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("CoerceNumber", func() {
	DescribeTable("coercing loosely typed values",
		func(in any, want any) {
			if want == nil {
				Expect(CoerceNumber(in).Value()).To(BeNil())
				return
			}
			Expect(CoerceNumber(in).Value()).To(Equal(want))
		},
		Entry("currency string with separators", "₹3,000.00", 3000.0),
		Entry("dollar amount", "$ 42.75", 42.75),
		Entry("negative amount", "-12.5", -12.5),
		Entry("integer already numeric", 1500, 1500.0),
		Entry("float already numeric", 25.99, 25.99),
		Entry("json number", json.Number("7.5"), 7.5),
		Entry("null", nil, nil),
		Entry("empty string", "", nil),
		Entry("whitespace", "   ", nil),
		Entry("lone dash", "-", nil),
		Entry("lone dot", ".", nil),
		Entry("dash dot", "-.", nil),
		Entry("words only", "N/A", nil),
		Entry("unparseable leftovers", "1.2.3", nil),
		Entry("boolean", true, nil),
	)

	It("is idempotent", func() {
		once := CoerceNumber("₹3,000.00")
		twice := CoerceNumber(once)
		Expect(twice.Value()).To(Equal(once.Value()))
		Expect(CoerceNumber(twice.Value()).Value()).To(Equal(3000.0))
	})

	It("marks the result as normalized", func() {
		Expect(CoerceNumber("abc").Normalized()).To(BeTrue())
		Expect(CoerceNumber("abc").IsNull()).To(BeTrue())
	})
})

var _ = Describe("NormalizeDate", func() {
	DescribeTable("normalizing date strings",
		func(in *string, want *string) {
			if want == nil {
				Expect(NormalizeDate(in)).To(BeNil())
				return
			}
			Expect(NormalizeDate(in)).To(Equal(want))
		},
		Entry("abbreviated month", ptr("Jan 23, 2025"), ptr("2025-01-23")),
		Entry("full month", ptr("January 23, 2025"), ptr("2025-01-23")),
		Entry("day abbreviated month", ptr("23 Jan 2025"), ptr("2025-01-23")),
		Entry("day full month", ptr("23 January 2025"), ptr("2025-01-23")),
		Entry("day-month-year with dashes", ptr("23-01-2025"), ptr("2025-01-23")),
		Entry("day/month/year", ptr("23/01/2025"), ptr("2025-01-23")),
		Entry("iso", ptr("2025-01-23"), ptr("2025-01-23")),
		Entry("us month/day/year", ptr("12/31/2024"), ptr("2024-12-31")),
		Entry("ambiguous reads day first", ptr("01/02/2025"), ptr("2025-02-01")),
		Entry("surrounding whitespace", ptr("  Jan 5, 2025 "), ptr("2025-01-05")),
		Entry("unparseable", ptr("not a date"), ptr("not a date")),
		Entry("unparseable is trimmed", ptr(" Q1 2025 "), ptr("Q1 2025")),
		Entry("empty", ptr(""), nil),
		Entry("null", nil, nil),
	)

	It("is idempotent", func() {
		once := NormalizeDate(ptr("23 January 2025"))
		Expect(NormalizeDate(once)).To(Equal(once))
	})
})

var _ = Describe("Normalize", func() {
	var data *InvoiceData

	BeforeEach(func() {
		var err error
		data, err = Validate(map[string]any{
			"invoice_date": "Jan 23, 2025",
			"subtotal":     "₹3,000.00",
			"tax":          "-",
			"total":        1500,
			"items": []any{
				map[string]any{"item": "A", "quantity": "2", "rate": "1,500", "amount": "₹3,000"},
				map[string]any{"item": "B"},
			},
		})
		Expect(err).NotTo(HaveOccurred())
	})

	JustBeforeEach(func() {
		Normalize(data)
	})

	It("should coerce the header amounts", func() {
		Expect(data.Subtotal.Value()).To(Equal(3000.0))
		Expect(data.Tax.Value()).To(BeNil())
		Expect(data.Total.Value()).To(Equal(1500.0))
	})

	It("should coerce every item", func() {
		Expect(data.Items[0].Quantity.Value()).To(Equal(2.0))
		Expect(data.Items[0].Rate.Value()).To(Equal(1500.0))
		Expect(data.Items[0].Amount.Value()).To(Equal(3000.0))
		Expect(data.Items[1].Quantity.IsNull()).To(BeTrue())
	})

	It("should rewrite the invoice date", func() {
		Expect(data.InvoiceDate).To(Equal(ptr("2025-01-23")))
	})

	It("should give the same result when run again", func() {
		before, err := json.Marshal(data)
		Expect(err).NotTo(HaveOccurred())
		Normalize(data)
		after, err := json.Marshal(data)
		Expect(err).NotTo(HaveOccurred())
		Expect(after).To(MatchJSON(before))
	})

	It("should serialize numbers as numbers and nulls as null", func() {
		out, err := json.Marshal(data)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(out)).To(ContainSubstring(`"subtotal":3000`))
		Expect(string(out)).To(ContainSubstring(`"tax":null`))
	})
})

var _ = Describe("ValidateAndNormalize", func() {
	It("parses the invoice embedded in a JSON round trip", func() {
		var raw map[string]any
		Expect(json.Unmarshal([]byte(`{"invoice_number":"A1","subtotal":"$10","items":[]}`), &raw)).To(Succeed())

		data, err := ValidateAndNormalize(raw)
		Expect(err).NotTo(HaveOccurred())
		Expect(data.Subtotal.Value()).To(Equal(10.0))
		Expect(data.Items).To(BeEmpty())
	})

	It("round trips through JSON", func() {
		data, err := ValidateAndNormalize(map[string]any{"total": "12.50", "items": []any{map[string]any{"item": "x", "rate": 3.0}}})
		Expect(err).NotTo(HaveOccurred())

		encoded, err := json.Marshal(data)
		Expect(err).NotTo(HaveOccurred())

		var decoded InvoiceData
		Expect(json.Unmarshal(encoded, &decoded)).To(Succeed())
		Expect(decoded.Total.Value()).To(Equal(12.5))
		Expect(decoded.Items[0].Rate.Value()).To(Equal(3.0))
		Expect(decoded.Items[0].Amount.IsNull()).To(BeTrue())
	})
})
