package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/golang/glog"

	"github.com/hb9tf/vnasweep/vna"
)

const (
	contentType          = "application/json"
	CollectEndpoint      = "vnasweep/v1/collect"
	defaultSendRowAmount = 16
)

// CollectResponse is what the collection server answers.
type CollectResponse struct {
	Status   string `json:"status"`
	RowCount int    `json:"rowCount"`
}

// SpectreServer ships rows in batches to a collection server. Rows still
// pending are sent on Close.
type SpectreServer struct {
	Server         string
	SendRowsAmount int
	Client         *http.Client

	pending []vna.Row
}

func (s *SpectreServer) client() *http.Client {
	if s.Client != nil {
		return s.Client
	}
	return http.DefaultClient
}

func (s *SpectreServer) Write(ctx context.Context, row *vna.Row) error {
	sendRowsAmount := defaultSendRowAmount
	if s.SendRowsAmount > 0 {
		sendRowsAmount = s.SendRowsAmount
	}
	s.pending = append(s.pending, *row)
	if len(s.pending) < sendRowsAmount {
		return nil // we haven't collected enough rows to send yet
	}
	return s.flush(ctx)
}

func (s *SpectreServer) flush(ctx context.Context) error {
	if len(s.pending) == 0 {
		return nil
	}
	body, err := json.Marshal(s.pending)
	if err != nil {
		return fmt.Errorf("marshalling rows to JSON: %s", err)
	}
	url := fmt.Sprintf("%s/%s", strings.TrimRight(s.Server, "/"), CollectEndpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	resp, err := s.client().Do(req)
	if err != nil {
		return fmt.Errorf("POSTing rows: %s", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading POST response: %s", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server %s rejected rows: %s: %s", s.Server, resp.Status, strings.TrimSpace(string(respBody)))
	}

	collectResponseBody := CollectResponse{}
	json.Unmarshal(respBody, &collectResponseBody)
	glog.Infof("submitted %d rows to server %s", collectResponseBody.RowCount, s.Server)

	s.pending = nil
	return nil
}

func (s *SpectreServer) Close() error {
	return s.flush(context.Background())
}
