package graph

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	neturl "net/url"
)

const (
	// inlineAttachmentMax is the largest payload sent as a single
	// base64-encoded fileAttachment; anything strictly larger goes through
	// an upload session.
	inlineAttachmentMax = 3_000_000
	// uploadChunkSize is the fixed byte-range size for session PUTs; the
	// last chunk may be shorter.
	uploadChunkSize = 4_000_000
)

// UploadSession tracks a server-issued chunked upload.
type UploadSession struct {
	UploadURL          string   `json:"uploadUrl"`
	ExpirationDateTime string   `json:"expirationDateTime,omitempty"`
	NextExpectedRanges []string `json:"nextExpectedRanges,omitempty"`
}

// Attachment is the metadata slice the download path selects.
type Attachment struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
}

// UploadAttachment attaches data to a message, inlining small payloads and
// streaming large ones through a chunked upload session.
func (c *Client) UploadAttachment(ctx context.Context, messageID, name, contentType string, data []byte) error {
	if name == "" {
		return errors.New("graph: attachment file name is required")
	}
	if len(data) > inlineAttachmentMax {
		return c.uploadLarge(ctx, messageID, name, data)
	}
	payload := map[string]any{
		"@odata.type":  "#microsoft.graph.fileAttachment",
		"name":         name,
		"contentBytes": base64.StdEncoding.EncodeToString(data),
	}
	if contentType != "" {
		payload["contentType"] = contentType
	}
	_, err := c.Call(ctx, http.MethodPost, fmt.Sprintf("/messages/%s/attachments", messageID), nil, payload)
	return err
}

func (c *Client) uploadLarge(ctx context.Context, messageID, name string, data []byte) error {
	session, err := c.createUploadSession(ctx, messageID, name, len(data))
	if err != nil {
		return err
	}
	total := len(data)
	for start := 0; start < total; start += uploadChunkSize {
		end := start + uploadChunkSize
		if end > total {
			end = total
		}
		if err := c.putChunk(ctx, session.UploadURL, data[start:end], start, end-1, total); err != nil {
			return err
		}
	}
	return nil
}

// createUploadSession declares the attachment's name and total size and
// returns the server-issued session. A response with no uploadUrl is fatal
// for the item; there is nothing to retry against.
func (c *Client) createUploadSession(ctx context.Context, messageID, name string, size int) (*UploadSession, error) {
	body := map[string]any{
		"AttachmentItem": map[string]any{
			"attachmentType": "file",
			"name":           name,
			"size":           size,
		},
	}
	response, err := c.Call(ctx, http.MethodPost, fmt.Sprintf("/messages/%s/attachments/createUploadSession", messageID), nil, body)
	if err != nil {
		return nil, fmt.Errorf("graph: create upload session: %w", err)
	}
	url, _ := response["uploadUrl"].(string)
	if url == "" {
		return nil, errors.New("graph: upload session response carries no uploadUrl")
	}
	session := &UploadSession{UploadURL: url}
	if exp, ok := response["expirationDateTime"].(string); ok {
		session.ExpirationDateTime = exp
	}
	return session, nil
}

// putChunk uploads one byte range. Chunks are issued strictly in ascending
// order; the server tracks cumulative progress from the Content-Range and
// completes the session implicitly when the declared total is reached.
func (c *Client) putChunk(ctx context.Context, uploadURL string, chunk []byte, start, end, total int) error {
	headers := map[string]string{
		"Content-Type":   "application/octet-stream",
		"Content-Length": fmt.Sprintf("%d", len(chunk)),
		"Content-Range":  fmt.Sprintf("bytes %d-%d/%d", start, end, total),
	}
	if _, _, err := c.do(ctx, http.MethodPut, uploadURL, chunk, headers); err != nil {
		return fmt.Errorf("graph: upload chunk %d-%d: %w", start, end, err)
	}
	return nil
}

// DownloadAttachment fetches an attachment's metadata and its raw content.
// Metadata comes first so the caller learns the real file name and MIME type.
func (c *Client) DownloadAttachment(ctx context.Context, messageID, attachmentID string) (*Attachment, []byte, error) {
	query := neturl.Values{}
	query.Set("$select", "id,name,contentType")
	meta, err := c.Call(ctx, http.MethodGet, fmt.Sprintf("/messages/%s/attachments/%s", messageID, attachmentID), query, nil)
	if err != nil {
		return nil, nil, err
	}
	attachment := &Attachment{ID: attachmentID}
	if v, ok := meta["name"].(string); ok {
		attachment.Name = v
	}
	if v, ok := meta["contentType"].(string); ok {
		attachment.ContentType = v
	}
	data, _, err := c.CallRaw(ctx, http.MethodGet, fmt.Sprintf("/messages/%s/attachments/%s/$value", messageID, attachmentID))
	if err != nil {
		return nil, nil, err
	}
	return attachment, data, nil
}

// GetMessageMime fetches the raw MIME form of a message. The content type is
// taken from the response header when the server declares one.
func (c *Client) GetMessageMime(ctx context.Context, messageID string) ([]byte, string, error) {
	return c.CallRaw(ctx, http.MethodGet, fmt.Sprintf("/messages/%s/$value", messageID))
}

// ListCategories returns the mailbox master categories.
func (c *Client) ListCategories(ctx context.Context) ([]map[string]any, error) {
	return c.FetchAll(ctx, "value", http.MethodGet, "/outlook/masterCategories", nil, nil)
}
