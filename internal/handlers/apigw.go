package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/aws/aws-lambda-go/events"
)

// HandleAPIGateway serves the route table behind an API Gateway HTTP API.
func (a *API) HandleAPIGateway(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	method := strings.ToUpper(req.RequestContext.HTTP.Method)
	path := req.RawPath
	if path == "" {
		path = "/"
	}
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}

	query := url.Values{}
	for k, v := range req.QueryStringParameters {
		query.Set(k, v)
	}

	pathFound := false
	for _, rt := range a.routes() {
		if rt.path != path {
			continue
		}
		pathFound = true
		if rt.method == method {
			status, body := rt.handler(ctx, query)
			return jsonResp(status, body)
		}
	}
	if pathFound {
		return errResp(http.StatusMethodNotAllowed, "method not allowed")
	}
	return errResp(http.StatusNotFound, "not found")
}

func jsonResp(status int, v any) (events.APIGatewayV2HTTPResponse, error) {
	b, _ := json.Marshal(v)
	return events.APIGatewayV2HTTPResponse{
		StatusCode: status,
		Headers: map[string]string{
			"content-type": "application/json",
		},
		Body: string(b),
	}, nil
}

func errResp(status int, msg string) (events.APIGatewayV2HTTPResponse, error) {
	return jsonResp(status, ErrorBody{Error: msg, Message: http.StatusText(status)})
}
