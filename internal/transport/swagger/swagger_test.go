package swagger_test

import (
	"context"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/expense-approval/internal/transport/swagger"
)

var _ = Describe("OpenAPI spec", func() {
	It("loads and validates the shipped document", func() {
		spec, err := swagger.LoadSpec(context.Background(), "../../../api/openapi.yml")
		Expect(err).NotTo(HaveOccurred())
		Expect(spec.Doc.Paths.Find("/approvals/{id}/action")).NotTo(BeNil())
		Expect(spec.Doc.Paths.Find("/approval-rules/{id}/toggle")).NotTo(BeNil())
		Expect(spec.Operations()).To(BeNumerically(">", 20))
	})

	It("rejects an invalid document", func() {
		_, err := swagger.ParseSpec(context.Background(), []byte("openapi: 3.0.3\ninfo: {}\npaths: {}\n"))
		Expect(err).To(HaveOccurred())
	})

	It("serves the raw document", func() {
		raw := []byte("openapi: 3.0.3\ninfo:\n  title: t\n  version: '1'\npaths: {}\n")
		spec, err := swagger.ParseSpec(context.Background(), raw)
		Expect(err).NotTo(HaveOccurred())

		rec := httptest.NewRecorder()
		spec.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, swagger.SpecURL, nil))
		Expect(rec.Body.Bytes()).To(Equal(raw))
	})
})
