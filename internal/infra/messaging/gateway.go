// Package messaging is the HTTP client of the notification gateway.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"patient_recommender/internal/domain/messaging"
	"patient_recommender/internal/infra/httpclient"
)

var paths = map[messaging.Destination]string{
	messaging.DestinationPatient:      "/notification/sendNotifications",
	messaging.DestinationProfessional: "/notification/sendNotificationToMedicalProfessionalByPatient",
}

// Gateway implements messaging.Gateway.
type Gateway struct {
	http *httpclient.Client
}

var _ messaging.Gateway = (*Gateway)(nil)

func New(hc *httpclient.Client) *Gateway {
	return &Gateway{http: hc}
}

// Send posts msg exactly once and returns the gateway code. Failed
// deliveries are not retried. The gateway reports its own codes in the
// body "code" field; without one the HTTP status is the code.
func (g *Gateway) Send(ctx context.Context, msg messaging.Message, dest messaging.Destination) (int, error) {
	path, ok := paths[dest]
	if !ok {
		return 0, fmt.Errorf("unknown gateway destination %q", dest)
	}
	resp, err := g.http.DoOnce(ctx, http.MethodPost, path, msg)
	if err != nil {
		return 0, err
	}
	if code, ok := bodyCode(resp.Body); ok {
		return code, nil
	}
	return resp.Status, nil
}

func bodyCode(body []byte) (int, bool) {
	var payload struct {
		Code json.RawMessage `json:"code"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.Code) == 0 {
		return 0, false
	}
	raw := strings.Trim(string(payload.Code), `"`)
	code, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return code, true
}
