package prep

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/go-resty/resty/v2"
	"github.com/kit-data-manager/staging/pkg/auth"
	"github.com/kit-data-manager/staging/pkg/dataorg"
	"github.com/kit-data-manager/staging/pkg/stagedb/model"
	"github.com/kit-data-manager/staging/pkg/staging"
	"github.com/pkg/errors"
)

var ErrStagingAPI = errors.New("staging api")

// ErrorResponse is the JSON body a remote staging node answers with when a
// call fails.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func toErrorFromResponse(resp *resty.Response) error {
	var errorResponse ErrorResponse
	if err := json.Unmarshal(resp.Body(), &errorResponse); err != nil {
		return errors.Wrapf(ErrStagingAPI, "(HTTP Status: %d) - unable to parse json error response: %s", resp.StatusCode(), err)
	}

	return errors.Wrapf(ErrStagingAPI, "(HTTP Status: %d) - %s: %s", resp.StatusCode(), errorResponse.Code, errorResponse.Message)
}

// RestHandler delegates preparation and flushing to a remote staging node
// over its REST API. The remote node owns timeouts and retries for the
// actual data movement.
type RestHandler struct {
	client  *resty.Client
	baseURL string
}

func NewRestHandler(baseURL, apiToken string) *RestHandler {
	client := resty.New().SetAuthToken(apiToken)
	return &RestHandler{client: client, baseURL: baseURL}
}

type prepareRequest struct {
	TransferID    int64             `json:"transfer_id"`
	Kind          model.Kind        `json:"kind"`
	ObjectID      string            `json:"object_id"`
	AccessPointID string            `json:"access_point_id"`
	Tree          json.RawMessage   `json:"tree"`
	Properties    map[string]string `json:"properties,omitempty"`
}

func (h *RestHandler) PrepareTransfer(transfer *model.Transfer, tree *dataorg.FileTree, properties *staging.TransferClientProperties, ctx auth.AccessContext) error {
	var encoded bytes.Buffer
	if err := dataorg.EncodeTree(&encoded, tree); err != nil {
		return errors.Wrapf(err, "encoding tree of object %s", transfer.ObjectID)
	}

	req := prepareRequest{
		TransferID:    transfer.ID,
		Kind:          transfer.Kind,
		ObjectID:      transfer.ObjectID,
		AccessPointID: transfer.AccessPointID,
		Tree:          encoded.Bytes(),
		Properties:    properties.ToMap(),
	}

	resp, err := h.client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		Post(fmt.Sprintf("%s/api/v1/staging/prepare", h.baseURL))
	if err != nil {
		return errors.Wrapf(ErrStagingAPI, "calling prepare for transfer %d: %s", transfer.ID, err)
	}

	if resp.IsError() {
		return toErrorFromResponse(resp)
	}

	return nil
}

func (h *RestHandler) Flush(transferID int64, ctx auth.AccessContext) error {
	resp, err := h.client.R().
		Delete(fmt.Sprintf("%s/api/v1/staging/%d", h.baseURL, transferID))
	if err != nil {
		return errors.Wrapf(ErrStagingAPI, "calling flush for transfer %d: %s", transferID, err)
	}

	// Flushing data that was never staged is fine.
	if resp.IsError() && resp.StatusCode() != 404 {
		return toErrorFromResponse(resp)
	}

	return nil
}
