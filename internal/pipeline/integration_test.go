package pipeline_test

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
	"github.com/xuri/excelize/v2"

	"github.com/zombor/invoice-extractor/internal/pipeline"
	"github.com/zombor/invoice-extractor/internal/scanning"
)

const modelReply = "Here is the invoice:\n```json\n" + `{
  "invoice_number": "INV-2025-007",
  "invoice_date": "23/01/2025",
  "email": "billing@acme.example",
  "billed_by": "Acme Ltd",
  "billed_by_address": "1 Main St",
  "billed_to": "Globex",
  "billed_to_address": null,
  "currency": "INR",
  "subtotal": "3,000.00",
  "tax": 540,
  "total": "₹3,540.00",
  "items": [
    {"item": "Design", "quantity": 1, "rate": "1,000", "amount": 1000},
    {"item": "Build", "quantity": 2, "rate": 1000, "amount": "2000"}
  ]
}` + "\n```"

var _ = Describe("Integration", func() {
	var (
		tempDir    string
		outputPath string
		db         *pipeline.BoltDB
		store      *pipeline.LocalStorage
		openAI     *ghttp.Server
		p          *pipeline.Pipeline
		server     *pipeline.Server
		apiServer  *ghttp.Server
	)

	BeforeEach(func() {
		tempDir = GinkgoT().TempDir()
		outputPath = filepath.Join(tempDir, "outputs", "invoices.xlsx")

		var err error
		db, err = pipeline.NewBoltDB(filepath.Join(tempDir, "journal.db"))
		Expect(err).NotTo(HaveOccurred())

		store, err = pipeline.NewLocalStorage(filepath.Join(tempDir, "uploads"))
		Expect(err).NotTo(HaveOccurred())

		openAI = ghttp.NewServer()
		openAI.AppendHandlers(ghttp.CombineHandlers(
			ghttp.VerifyRequest(http.MethodPost, "/v1/chat/completions"),
			ghttp.VerifyHeaderKV("Authorization", "Bearer test-key"),
			ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
				"id":      "chatcmpl-integration",
				"object":  "chat.completion",
				"created": 1700000000,
				"model":   scanning.DefaultOpenAIModel,
				"choices": []any{
					map[string]any{
						"index":         0,
						"finish_reason": "stop",
						"message":       map[string]any{"role": "assistant", "content": modelReply},
					},
				},
			}),
		))

		p, err = pipeline.New(pipeline.Config{
			OutputPath: outputPath,
			Extraction: scanning.Config{
				Provider: scanning.ProviderOpenAI,
				APIKey:   "test-key",
				BaseURL:  openAI.URL() + "/v1",
			},
		}, db, store)
		Expect(err).NotTo(HaveOccurred())

		server = pipeline.NewServer(p, pipeline.BasicAuth{})
		apiServer = ghttp.NewServer()
	})

	AfterEach(func() {
		apiServer.Close()
		openAI.Close()
		p.Close()
		db.Close()
	})

	It("uploads an invoice, writes the workbook and journals the run", func() {
		apiServer.AppendHandlers(server.ServeHTTP, server.ServeHTTP)

		// --- Step 1: upload ---
		body := &bytes.Buffer{}
		writer := multipart.NewWriter(body)
		part, err := writer.CreateFormFile("file", "acme invoice.png")
		Expect(err).NotTo(HaveOccurred())
		_, err = part.Write([]byte("\x89PNG\r\n\x1a\nnot really a png"))
		Expect(err).NotTo(HaveOccurred())
		Expect(writer.Close()).To(Succeed())

		resp, err := http.Post(apiServer.URL()+"/api/invoices", writer.FormDataContentType(), body)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusCreated))

		var out pipeline.Output
		respBody, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(json.Unmarshal(respBody, &out)).To(Succeed())

		Expect(out.ID).NotTo(BeEmpty())
		Expect(out.RowsWritten).To(Equal(2))
		Expect(out.OutputPath).To(Equal(outputPath))
		Expect(*out.Invoice.InvoiceDate).To(Equal("2025-01-23"))
		Expect(out.Invoice.Total.Value()).To(Equal(3540.0))

		// --- Step 2: workbook contents ---
		f, err := excelize.OpenFile(outputPath)
		Expect(err).NotTo(HaveOccurred())
		rows, err := f.GetRows(f.GetSheetName(0))
		Expect(err).NotTo(HaveOccurred())
		Expect(f.Close()).To(Succeed())

		Expect(rows).To(HaveLen(3))
		Expect(rows[0][0]).To(Equal("invoice_number"))
		Expect(rows[1][0]).To(Equal("INV-2025-007"))
		Expect(rows[1][1]).To(Equal("2025-01-23"))
		Expect(rows[1][11]).To(Equal("Design"))
		Expect(rows[1][13]).To(Equal("1000"))
		Expect(rows[2][11]).To(Equal("Build"))
		Expect(rows[2][12]).To(Equal("2"))

		// --- Step 3: journal ---
		record, err := db.GetRecord(out.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(record.Filename).To(Equal("acme invoice.png"))
		Expect(record.RowsWritten).To(Equal(2))

		archived, err := store.Get(record.StoredFile)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(archived)).To(HavePrefix("\x89PNG"))

		// --- Step 4: history over HTTP ---
		listResp, err := http.Get(apiServer.URL() + "/api/invoices")
		Expect(err).NotTo(HaveOccurred())
		defer listResp.Body.Close()
		Expect(listResp.StatusCode).To(Equal(http.StatusOK))

		var records []*pipeline.Record
		listBody, err := io.ReadAll(listResp.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(json.Unmarshal(listBody, &records)).To(Succeed())
		Expect(records).To(HaveLen(1))
		Expect(records[0].ID).To(Equal(out.ID))
	})
})
