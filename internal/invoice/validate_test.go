package invoice

import (
	"bytes"
	"errors"
	"log/slog"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Validate", func() {
	var (
		raw  map[string]any
		data *InvoiceData
		err  error
	)

	JustBeforeEach(func() {
		data, err = Validate(raw)
	})

	When("the extraction is complete", func() {
		BeforeEach(func() {
			raw = map[string]any{
				"invoice_number":    "INV-001",
				"invoice_date":      "Jan 23, 2025",
				"email":             "billing@acme.test",
				"billed_by":         "Acme Ltd",
				"billed_by_address": "1 Road",
				"billed_to":         "Globex",
				"billed_to_address": "2 Street",
				"currency":          "INR",
				"subtotal":          "₹3,000.00",
				"tax":               540.0,
				"total":             nil,
				"items": []any{
					map[string]any{"item": "Design", "quantity": 2.0, "rate": "1,500", "amount": 3000.0},
				},
			}
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should copy the header strings", func() {
			Expect(data.InvoiceNumber).To(Equal(ptr("INV-001")))
			Expect(data.BilledTo).To(Equal(ptr("Globex")))
			Expect(data.Currency).To(Equal(ptr("INR")))
		})

		It("should keep numeric fields raw for the normalizer", func() {
			Expect(data.Subtotal.Normalized()).To(BeFalse())
			Expect(data.Subtotal.Raw()).To(Equal("₹3,000.00"))
			Expect(data.Tax.Raw()).To(Equal(540.0))
			Expect(data.Total.IsNull()).To(BeTrue())
		})

		It("should not touch the date", func() {
			Expect(data.InvoiceDate).To(Equal(ptr("Jan 23, 2025")))
		})

		It("should keep the line items in order", func() {
			Expect(data.Items).To(HaveLen(1))
			Expect(data.Items[0].Item).To(Equal("Design"))
			Expect(data.Items[0].Rate.Raw()).To(Equal("1,500"))
		})
	})

	When("items is absent", func() {
		BeforeEach(func() {
			raw = map[string]any{"invoice_number": "A1"}
		})

		It("should validate with an empty item list", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(data.Items).NotTo(BeNil())
			Expect(data.Items).To(BeEmpty())
		})

		It("should default the other header fields to null", func() {
			Expect(data.Email).To(BeNil())
			Expect(data.Subtotal.IsNull()).To(BeTrue())
		})
	})

	When("items is null", func() {
		BeforeEach(func() {
			raw = map[string]any{"items": nil}
		})

		It("should validate with an empty item list", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(data.Items).To(BeEmpty())
		})
	})

	When("a header field has the wrong kind", func() {
		var logs *bytes.Buffer

		BeforeEach(func() {
			raw = map[string]any{"invoice_number": 12345.0, "email": true, "billed_to": nil}

			logs = &bytes.Buffer{}
			previous := slog.Default()
			slog.SetDefault(slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug})))
			DeferCleanup(func() { slog.SetDefault(previous) })
		})

		It("should not fail", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should leave the field null", func() {
			Expect(data.InvoiceNumber).To(BeNil())
			Expect(data.Email).To(BeNil())
		})

		It("should log each dropped value at debug level", func() {
			out := logs.String()
			Expect(out).To(ContainSubstring("level=DEBUG"))
			Expect(out).To(ContainSubstring("field=invoice_number kind=number"))
			Expect(out).To(ContainSubstring("field=email kind=boolean"))
		})

		It("should not log explicit nulls", func() {
			Expect(logs.String()).NotTo(ContainSubstring("field=billed_to"))
		})
	})

	When("an item has no name", func() {
		BeforeEach(func() {
			raw = map[string]any{
				"items": []any{map[string]any{"quantity": 5.0}},
			}
		})

		It("returns a SchemaValidationError", func() {
			var schemaErr *SchemaValidationError
			Expect(errors.As(err, &schemaErr)).To(BeTrue())
			Expect(schemaErr.FieldNames()).To(ConsistOf("items[0].item"))
		})

		It("returns no invoice", func() {
			Expect(data).To(BeNil())
		})
	})

	When("an item name is null", func() {
		BeforeEach(func() {
			raw = map[string]any{
				"items": []any{map[string]any{"item": nil}},
			}
		})

		It("returns a SchemaValidationError", func() {
			var schemaErr *SchemaValidationError
			Expect(errors.As(err, &schemaErr)).To(BeTrue())
		})
	})

	When("several items are malformed", func() {
		BeforeEach(func() {
			raw = map[string]any{
				"items": []any{
					map[string]any{"item": "ok"},
					"not an object",
					map[string]any{"item": 7.0},
				},
			}
		})

		It("reports every offending element", func() {
			var schemaErr *SchemaValidationError
			Expect(errors.As(err, &schemaErr)).To(BeTrue())
			Expect(schemaErr.FieldNames()).To(Equal([]string{"items[1]", "items[2].item"}))
			Expect(err.Error()).To(ContainSubstring("expected an object, got string"))
		})
	})

	When("items is not an array", func() {
		BeforeEach(func() {
			raw = map[string]any{"items": map[string]any{"item": "x"}}
		})

		It("returns a SchemaValidationError on items", func() {
			var schemaErr *SchemaValidationError
			Expect(errors.As(err, &schemaErr)).To(BeTrue())
			Expect(schemaErr.FieldNames()).To(Equal([]string{"items"}))
		})
	})
})
