package telemetry

import (
	"context"
	"regexp"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	report_http_request  = "http.request"
	report_http_response = "http.response"
	report_http_error    = "http.error"
)

// bot API urls carry the token in their path
var botTokenRegex = regexp.MustCompile(`/bot\d+:[\w-]+`)

func redactURL(url string) string {
	return botTokenRegex.ReplaceAllString(url, "/bot<token>")
}

type requestInfo struct {
	id    uint64
	start time.Time
}

type requestInfoKey struct{}

// InstrumentResty reports every request, response and transport error of the
// client, tokens embedded in urls are never reported.
func InstrumentResty(client *resty.Client, tel API) {
	var counter atomic.Uint64

	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		info := requestInfo{id: counter.Add(1), start: time.Now()}
		req.SetContext(context.WithValue(req.Context(), requestInfoKey{}, info))
		tel.ReportDebug(report_http_request, info.id, req.Method, redactURL(req.URL))
		return nil
	})

	client.OnAfterResponse(func(_ *resty.Client, res *resty.Response) error {
		info, ok := res.Request.Context().Value(requestInfoKey{}).(requestInfo)
		if !ok {
			tel.ReportDebug(report_http_response, res.Status())
			return nil
		}
		tel.ReportDebug(report_http_response, info.id, res.Status(), time.Since(info.start).String())
		return nil
	})

	client.OnError(func(req *resty.Request, err error) {
		params := []any{redactURL(err.Error()), req.Method, redactURL(req.URL)}
		if info, ok := req.Context().Value(requestInfoKey{}).(requestInfo); ok {
			params = append(params, time.Since(info.start).String())
		}
		tel.ReportBroken(report_http_error, params...)
	})
}
