package etherscan_test

import (
	"context"
	"errors"
	"net/http"

	"github.com/jarcoal/httpmock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/brojonat/signwatch/service/etherscan"
	"github.com/brojonat/signwatch/service/metrics"
)

const (
	baseURL  = "https://api.etherscan.io/api"
	contract = "0x868fced65edbf0056c4163515dd840e9f287a4c3"
)

var _ = Describe("FetchTokenTransfers", func() {
	var client *etherscan.Client

	BeforeEach(func() {
		httpmock.Reset()
		m := metrics.NewMetrics(prometheus.NewRegistry())
		client = etherscan.NewClient(mockClient, baseURL, "secret-key", m, nil)
	})

	It("sends the tokentx query and parses records", func() {
		respBody := `{"status":"1","message":"OK","result":[
			{"hash":"0xb","from":"0x1","to":"0x2","value":"2000000000000000000","tokenDecimal":"18","tokenSymbol":"SIGN","timeStamp":"2000"},
			{"hash":"0xa","from":"0x3","to":"0x4","value":"1000000000000000000","tokenDecimal":"18","tokenSymbol":"SIGN","timeStamp":"1000"}
		]}`

		httpmock.RegisterResponder(http.MethodGet, baseURL,
			func(req *http.Request) (*http.Response, error) {
				q := req.URL.Query()
				Expect(q.Get("module")).To(Equal("account"))
				Expect(q.Get("action")).To(Equal("tokentx"))
				Expect(q.Get("contractaddress")).To(Equal(contract))
				Expect(q.Get("page")).To(Equal("1"))
				Expect(q.Get("offset")).To(Equal("100"))
				Expect(q.Get("sort")).To(Equal("desc"))
				Expect(q.Get("apikey")).To(Equal("secret-key"))

				return httpmock.NewStringResponse(http.StatusOK, respBody), nil
			},
		)

		records, err := client.FetchTokenTransfers(context.Background(), contract, 100)
		Expect(err).ToNot(HaveOccurred())
		Expect(records).To(HaveLen(2))
		Expect(records[0].Hash).To(Equal("0xb"))
		Expect(records[0].AmountFloat()).To(Equal(2.0))
		Expect(records[1].TimeStamp).To(Equal("1000"))
	})

	It("returns an empty slice for an empty successful result", func() {
		httpmock.RegisterResponder(http.MethodGet, baseURL,
			httpmock.NewStringResponder(http.StatusOK, `{"status":"1","message":"OK","result":[]}`))

		records, err := client.FetchTokenTransfers(context.Background(), contract, 100)
		Expect(err).ToNot(HaveOccurred())
		Expect(records).ToNot(BeNil())
		Expect(records).To(BeEmpty())
	})

	It("reports status 0 as an API error with the result text", func() {
		httpmock.RegisterResponder(http.MethodGet, baseURL,
			httpmock.NewStringResponder(http.StatusOK, `{"status":"0","message":"NOTOK","result":"Invalid API Key"}`))

		_, err := client.FetchTokenTransfers(context.Background(), contract, 100)
		Expect(err).To(HaveOccurred())

		var fe *etherscan.FetchError
		Expect(errors.As(err, &fe)).To(BeTrue())
		Expect(fe.Kind).To(Equal(etherscan.KindAPI))
		Expect(fe.Message).To(Equal("API error: Invalid API Key"))
	})

	It("treats no transactions found as an API error", func() {
		httpmock.RegisterResponder(http.MethodGet, baseURL,
			httpmock.NewStringResponder(http.StatusOK, `{"status":"0","message":"No transactions found","result":[]}`))

		_, err := client.FetchTokenTransfers(context.Background(), contract, 100)

		var fe *etherscan.FetchError
		Expect(errors.As(err, &fe)).To(BeTrue())
		Expect(fe.Kind).To(Equal(etherscan.KindAPI))
		Expect(fe.Message).To(ContainSubstring("No transactions found"))
	})

	It("falls back to a generic hint when status 0 carries no text", func() {
		httpmock.RegisterResponder(http.MethodGet, baseURL,
			httpmock.NewStringResponder(http.StatusOK, `{"status":"0","message":"","result":""}`))

		_, err := client.FetchTokenTransfers(context.Background(), contract, 100)

		var fe *etherscan.FetchError
		Expect(errors.As(err, &fe)).To(BeTrue())
		Expect(fe.Message).To(ContainSubstring("NOTOK"))
	})

	It("reports a non-array result as malformed", func() {
		httpmock.RegisterResponder(http.MethodGet, baseURL,
			httpmock.NewStringResponder(http.StatusOK, `{"status":"1","message":"OK","result":"surprise"}`))

		_, err := client.FetchTokenTransfers(context.Background(), contract, 100)

		var fe *etherscan.FetchError
		Expect(errors.As(err, &fe)).To(BeTrue())
		Expect(fe.Kind).To(Equal(etherscan.KindMalformed))
	})

	It("reports an unknown status as malformed", func() {
		httpmock.RegisterResponder(http.MethodGet, baseURL,
			httpmock.NewStringResponder(http.StatusOK, `{"message":"rate limited"}`))

		_, err := client.FetchTokenTransfers(context.Background(), contract, 100)

		var fe *etherscan.FetchError
		Expect(errors.As(err, &fe)).To(BeTrue())
		Expect(fe.Kind).To(Equal(etherscan.KindMalformed))
	})

	It("reports a non-2xx response as a transport error", func() {
		httpmock.RegisterResponder(http.MethodGet, baseURL,
			httpmock.NewStringResponder(http.StatusBadGateway, "upstream down"))

		_, err := client.FetchTokenTransfers(context.Background(), contract, 100)

		var fe *etherscan.FetchError
		Expect(errors.As(err, &fe)).To(BeTrue())
		Expect(fe.Kind).To(Equal(etherscan.KindTransport))
		Expect(err.Error()).To(ContainSubstring("502"))
	})

	It("reports a network failure as a transport error", func() {
		httpmock.RegisterResponder(http.MethodGet, baseURL,
			httpmock.NewErrorResponder(errors.New("connection refused")))

		_, err := client.FetchTokenTransfers(context.Background(), contract, 100)

		var fe *etherscan.FetchError
		Expect(errors.As(err, &fe)).To(BeTrue())
		Expect(fe.Kind).To(Equal(etherscan.KindTransport))
		Expect(err.Error()).To(ContainSubstring("connection refused"))
	})

	It("reports an undecodable body as a transport failure", func() {
		httpmock.RegisterResponder(http.MethodGet, baseURL,
			httpmock.NewStringResponder(http.StatusOK, `<html>Bad Gateway</html>`))

		_, err := client.FetchTokenTransfers(context.Background(), contract, 100)

		var fe *etherscan.FetchError
		Expect(errors.As(err, &fe)).To(BeTrue())
		Expect(fe.Kind).To(Equal(etherscan.KindTransport))
		Expect(fe.Message).To(Equal("error fetching transactions"))
		Expect(fe.Err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("invalid character '<'"))
	})
})
