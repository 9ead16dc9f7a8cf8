// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package backend

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	"fhirq/cli/internal/errors"
)

// Multipart upload limits of the files service.
const (
	MultipartMinSize = 5 << 20
	MaxParts         = 10000
)

// PartPlan describes how a file is split for a multipart upload.
type PartPlan struct {
	PartSize int64
	Parts    int
}

// Range returns the byte range [start, end) of part n (1-based).
func (p PartPlan) Range(n int, size int64) (start, end int64) {
	start = int64(n-1) * p.PartSize
	end = start + p.PartSize
	if n == p.Parts || end > size {
		end = size
	}
	return start, end
}

// PlanParts splits size bytes into at most MaxParts parts of at least
// MultipartMinSize bytes each.
func PlanParts(size int64) PartPlan {
	if size <= 0 {
		return PartPlan{PartSize: MultipartMinSize, Parts: 0}
	}
	partSize := max(ceilDiv(size, MaxParts), MultipartMinSize)
	return PartPlan{PartSize: partSize, Parts: int(ceilDiv(size, partSize))}
}

func ceilDiv(a, b int64) int64 { return (a + b - 1) / b }

// File is file metadata as returned by the files service.
type File struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DatasetID   string `json:"datasetId"`
	Size        int64  `json:"size,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	UploadURL   string `json:"uploadUrl,omitempty"`
	DownloadURL string `json:"downloadUrl,omitempty"`
	UploadID    string `json:"uploadId,omitempty"`
}

// UploadOptions configures Upload.
type UploadOptions struct {
	// Name defaults to the base name of the source path.
	Name      string
	Overwrite bool
	// OnPart is called after each multipart part is stored.
	OnPart func(part, total int)
}

type createFile struct {
	Name      string `json:"name"`
	DatasetID string `json:"datasetId"`
	Overwrite bool   `json:"overwrite"`
}

// Upload stores the file at source in project. Files up to MultipartMinSize go in
// a single PUT; larger files use the multipart upload API.
func (c *Client) Upload(ctx context.Context, project, source string, opts UploadOptions) (File, error) {
	f, err := os.Open(source)
	if err != nil {
		return File{}, errors.Wrap(errors.Validation, "open upload source", err)
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return File{}, errors.Wrap(errors.Validation, "stat upload source", err)
	}
	if st.IsDir() {
		return File{}, errors.Newf(errors.Validation, "'%s' is a directory", source)
	}
	name := opts.Name
	if name == "" {
		name = filepath.Base(source)
	}
	body := createFile{Name: name, DatasetID: project, Overwrite: opts.Overwrite}

	if st.Size() > MultipartMinSize {
		return c.uploadMultipart(ctx, f, st.Size(), body, opts.OnPart)
	}

	r, err := jsonRequest(http.MethodPost, c.endpoints.APIURL("files"), body)
	if err != nil {
		return File{}, err
	}
	var created File
	if _, err := c.doJSON(ctx, r, &created); err != nil {
		return File{}, err
	}
	if err := c.putObject(ctx, created.UploadURL, io.NewSectionReader(f, 0, st.Size()), st.Size()); err != nil {
		return File{}, err
	}
	return created, nil
}

func (c *Client) uploadMultipart(ctx context.Context, f io.ReaderAt, size int64, body createFile, onPart func(int, int)) (File, error) {
	r, err := jsonRequest(http.MethodPost, c.endpoints.APIURL("uploads"), body)
	if err != nil {
		return File{}, err
	}
	var created File
	if _, err := c.doJSON(ctx, r, &created); err != nil {
		return File{}, err
	}
	if created.UploadID == "" {
		return File{}, errors.New(errors.Transport, "upload response carried no uploadId")
	}

	plan := PlanParts(size)
	for part := 1; part <= plan.Parts; part++ {
		if err := ctx.Err(); err != nil {
			return File{}, err
		}
		var target struct {
			UploadURL string `json:"uploadUrl"`
		}
		partURL := c.endpoints.APIURL("uploads", created.UploadID, "parts", strconv.Itoa(part))
		if _, err := c.doJSON(ctx, request{method: http.MethodGet, url: partURL}, &target); err != nil {
			return File{}, err
		}
		start, end := plan.Range(part, size)
		if err := c.putObject(ctx, target.UploadURL, io.NewSectionReader(f, start, end-start), end-start); err != nil {
			return File{}, fmt.Errorf("part %d/%d: %w", part, plan.Parts, err)
		}
		c.log.Debug().Int("part", part).Int("parts", plan.Parts).Msg("uploaded part")
		if onPart != nil {
			onPart(part, plan.Parts)
		}
	}

	done := request{method: http.MethodDelete, url: c.endpoints.APIURL("uploads", created.UploadID)}
	if _, err := c.doJSON(ctx, done, nil); err != nil {
		return File{}, err
	}
	return created, nil
}

// putObject stores bytes at a presigned URL, without platform credentials.
func (c *Client) putObject(ctx context.Context, target string, body io.Reader, size int64) error {
	if target == "" {
		return errors.New(errors.Transport, "no upload url in response")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, body)
	if err != nil {
		return errors.Wrap(errors.Validation, "build upload request", err)
	}
	req.ContentLength = size
	req.Header.Set("User-Agent", c.userAgent)
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(errors.Transport, "upload", err)
	}
	defer resp.Body.Close()
	return checkStatus(request{method: http.MethodPut, url: redact(target)}, resp)
}

// redact drops the query string (presigned credentials) from u.
func redact(u string) string {
	p, err := url.Parse(u)
	if err != nil {
		return "upload url"
	}
	p.RawQuery = ""
	return p.String()
}

// GetFile returns file metadata.
func (c *Client) GetFile(ctx context.Context, id string) (File, error) {
	var out File
	_, err := c.doJSON(ctx, request{method: http.MethodGet, url: c.endpoints.APIURL("files", id)}, &out)
	return out, err
}

// Download saves file id into destDir under its stored name and returns the path.
func (c *Client) Download(ctx context.Context, id, destDir string) (string, error) {
	var meta File
	u := c.endpoints.APIURL("files", id) + "?include=downloadUrl"
	if _, err := c.doJSON(ctx, request{method: http.MethodGet, url: u}, &meta); err != nil {
		return "", err
	}
	if meta.DownloadURL == "" {
		return "", errors.New(errors.Transport, "no downloadUrl in response")
	}
	name := filepath.Base(meta.Name)
	if name == "." || name == "/" || name == "" {
		name = id
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, meta.DownloadURL, nil)
	if err != nil {
		return "", errors.Wrap(errors.Validation, "build download request", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	resp, err := c.http.Do(req)
	if err != nil {
		return "", errors.Wrap(errors.Transport, "download", err)
	}
	defer resp.Body.Close()
	if err := checkStatus(request{method: http.MethodGet, url: redact(meta.DownloadURL)}, resp); err != nil {
		return "", err
	}

	dest := filepath.Join(destDir, name)
	out, err := os.Create(dest)
	if err != nil {
		return "", errors.Wrap(errors.Export, "create download target", err)
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		return "", errors.Wrap(errors.Transport, "download", err)
	}
	if err := out.Close(); err != nil {
		return "", errors.Wrap(errors.Export, "write download target", err)
	}
	return dest, nil
}

// FileUpdate renames a file or moves it to another project.
type FileUpdate struct {
	Name      string `json:"name,omitempty"`
	DatasetID string `json:"datasetId,omitempty"`
}

// UpdateFile applies u to file id. At least one field must be set.
func (c *Client) UpdateFile(ctx context.Context, id string, u FileUpdate) (File, error) {
	if u.Name == "" && u.DatasetID == "" {
		return File{}, errors.New(errors.Validation, "provide a new name or project for the file")
	}
	r, err := jsonRequest(http.MethodPatch, c.endpoints.APIURL("files", id), u)
	if err != nil {
		return File{}, err
	}
	var out File
	_, err = c.doJSON(ctx, r, &out)
	return out, err
}

// DeleteFile deletes file id. It reports true only for a 204 response.
func (c *Client) DeleteFile(ctx context.Context, id string) (bool, error) {
	code, err := c.doJSON(ctx, request{method: http.MethodDelete, url: c.endpoints.APIURL("files", id)}, nil)
	if err != nil {
		return false, err
	}
	return code == http.StatusNoContent, nil
}

// ListOptions pages through ListFiles.
type ListOptions struct {
	Folder        string
	PageSize      int
	NextPageToken string
}

// FileList is one page of files.
type FileList struct {
	Items         []File `json:"items"`
	NextPageToken string `json:"-"`
	Links         struct {
		Next string `json:"next"`
	} `json:"links"`
}

// ListFiles returns one page of the files in project.
func (c *Client) ListFiles(ctx context.Context, project string, opts ListOptions) (FileList, error) {
	q := url.Values{}
	if opts.PageSize > 0 {
		q.Set("pageSize", strconv.Itoa(opts.PageSize))
	}
	if opts.NextPageToken != "" {
		q.Set("nextPageToken", opts.NextPageToken)
	}
	if opts.Folder != "" {
		q.Set("prefix", opts.Folder)
	}
	u := c.endpoints.APIURL("projects", project, "files")
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	var out FileList
	if _, err := c.doJSON(ctx, request{method: http.MethodGet, url: u}, &out); err != nil {
		return FileList{}, err
	}
	if out.Links.Next != "" {
		if nu, err := url.Parse(out.Links.Next); err == nil {
			out.NextPageToken = nu.Query().Get("nextPageToken")
		}
	}
	return out, nil
}
