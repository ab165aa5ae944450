package integrations

import (
	"context"

	"github.com/GriffinCanCode/tracekit/internal/trace"
	"github.com/go-resty/resty/v2"
)

// TagURL is the outbound request URL
const TagURL = "url"

type restySpanKey struct{}

// Resty records every request made through client as an "HTTP/<METHOD>" span
// under the caller's current unit. Requests made outside any request or span
// are not recorded. The client is returned for chaining.
func Resty(t Instrumenter, client *resty.Client) *resty.Client {
	client.OnBeforeRequest(func(_ *resty.Client, r *resty.Request) error {
		parent := current(r.Context(), t)
		if parent == nil {
			return nil
		}
		span, err := parent.StartChildSpan("HTTP/" + r.Method)
		if err != nil {
			return nil
		}
		span.AddContext(trace.T(TagURL, r.URL), trace.T(trace.TagHTTPMethod, r.Method))
		r.SetContext(context.WithValue(r.Context(), restySpanKey{}, span))
		return nil
	})

	client.OnAfterResponse(func(_ *resty.Client, resp *resty.Response) error {
		if span := restySpan(resp.Request); span != nil {
			span.AddTag(trace.TagHTTPStatus, resp.StatusCode())
			span.Stop()
		}
		return nil
	})

	client.OnError(func(r *resty.Request, err error) {
		if span := restySpan(r); span != nil {
			span.AddTag(trace.TagError, err.Error())
			span.Stop()
		}
	})
	return client
}

func restySpan(r *resty.Request) *trace.Span {
	if r == nil {
		return nil
	}
	span, _ := r.Context().Value(restySpanKey{}).(*trace.Span)
	return span
}
