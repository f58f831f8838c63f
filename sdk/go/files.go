package stormsdk

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/storm-platform/storm-go/sdk/go/model"
)

var (
	// ErrUndefinedFiles is returned when uploading files that were never
	// defined on the draft.
	ErrUndefinedFiles = errors.New("files not defined")
	// ErrChecksumMismatch is returned when downloaded bytes do not match
	// the checksum advertised by the service.
	ErrChecksumMismatch = errors.New("checksum mismatch")
	// ErrNoContent is returned for entries without a content link.
	ErrNoContent = errors.New("file content not available")
	// ErrUnsafeFilename is returned for entries whose filename would land
	// outside the download directory.
	ErrUnsafeFilename = errors.New("filename escapes download directory")
)

// UndefinedFilesError lists the rejected filenames.
type UndefinedFilesError struct {
	Names []string
}

func (e *UndefinedFilesError) Error() string {
	return fmt.Sprintf("files not defined in the draft: %s", strings.Join(e.Names, ", "))
}

func (e *UndefinedFilesError) Unwrap() error { return ErrUndefinedFiles }

// ChecksumError reports a corrupted download. The file is left at Path.
type ChecksumError struct {
	Filename string
	Path     string
	Want     string
	Got      string
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("checksum for %s is not valid: want %s, got %s", e.Filename, e.Want, e.Got)
}

func (e *ChecksumError) Unwrap() error { return ErrChecksumMismatch }

// FileService manages the files of compendium drafts and downloads the
// files of any compendium.
type FileService struct {
	s *Storm
}

// DefineFiles declares filenames on the draft and returns the reloaded
// draft.
func (f *FileService) DefineFiles(ctx context.Context, draft *model.CompendiumDraft, filenames ...string) (*model.CompendiumDraft, error) {
	if _, err := model.Transition(draft.Kind(), model.OpDefineFiles); err != nil {
		return nil, err
	}
	u, err := draft.Links().URL(model.LinkFiles)
	if err != nil {
		return nil, err
	}
	body := make([]map[string]any, len(filenames))
	for i, name := range filenames {
		body[i] = map[string]any{"key": filepath.ToSlash(name)}
	}
	if _, err := f.s.req.Request(ctx, http.MethodPost, u, body, nil); err != nil {
		return nil, fmt.Errorf("define files on %s: %w", draft.ID(), err)
	}
	return f.reload(ctx, draft)
}

// DeleteDefinedFiles removes the named entries from the draft.
func (f *FileService) DeleteDefinedFiles(ctx context.Context, draft *model.CompendiumDraft, filenames ...string) (*model.CompendiumDraft, error) {
	if _, err := model.Transition(draft.Kind(), model.OpDeleteFiles); err != nil {
		return nil, err
	}
	err := f.eachEntry(ctx, draft, filenames, func(e *model.CompendiumFileEntry) error {
		u, err := e.SelfURL()
		if err != nil {
			return err
		}
		_, err = f.s.req.Request(ctx, http.MethodDelete, u, nil, nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("delete files on %s: %w", draft.ID(), err)
	}
	return f.reload(ctx, draft)
}

// CommitDefinedFiles commits the named, already uploaded entries.
func (f *FileService) CommitDefinedFiles(ctx context.Context, draft *model.CompendiumDraft, filenames ...string) (*model.CompendiumDraft, error) {
	if _, err := model.Transition(draft.Kind(), model.OpCommitFiles); err != nil {
		return nil, err
	}
	err := f.eachEntry(ctx, draft, filenames, func(e *model.CompendiumFileEntry) error {
		u, err := e.CommitURL()
		if err != nil {
			return err
		}
		_, err = f.s.req.Request(ctx, http.MethodPost, u, nil, nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("commit files on %s: %w", draft.ID(), err)
	}
	return f.reload(ctx, draft)
}

// UploadOptions controls UploadFiles.
type UploadOptions struct {
	// Define declares the files before uploading them.
	Define bool
	// Commit commits every file right after its upload.
	Commit bool
}

// UploadFiles uploads files, a filename to local path mapping, one at a
// time in filename order. Filenames the draft does not define are rejected
// before anything is uploaded.
func (f *FileService) UploadFiles(ctx context.Context, draft *model.CompendiumDraft, files map[string]string, opts UploadOptions) (*model.CompendiumDraft, error) {
	if _, err := model.Transition(draft.Kind(), model.OpUploadFiles); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	if opts.Define {
		var err error
		if draft, err = f.DefineFiles(ctx, draft, names...); err != nil {
			return nil, err
		}
	}
	bucket, err := f.s.FilesOf(ctx, draft)
	if err != nil {
		return nil, err
	}
	var undefined []string
	for _, name := range names {
		if _, ok := bucket.Entry(name); !ok {
			undefined = append(undefined, name)
		}
	}
	if len(undefined) > 0 {
		return nil, &UndefinedFilesError{Names: undefined}
	}

	for _, name := range names {
		entry, _ := bucket.Entry(name)
		u, err := entry.ContentURL()
		if err != nil {
			return nil, err
		}
		resp, err := f.s.req.Upload(ctx, http.MethodPut, u, files[name])
		if err != nil {
			return nil, fmt.Errorf("upload %s: %w", name, err)
		}
		f.s.log.Debug("uploaded", "draft", draft.ID(), "file", name)
		if !opts.Commit {
			continue
		}
		commitURL, err := commitURLOf(resp.Object, entry)
		if err != nil {
			return nil, err
		}
		if _, err := f.s.req.Request(ctx, http.MethodPost, commitURL, nil, nil); err != nil {
			return nil, fmt.Errorf("commit %s: %w", name, err)
		}
	}
	return f.reload(ctx, draft)
}

// commitURLOf prefers the commit link of the upload response.
func commitURLOf(object func() (map[string]any, error), entry *model.CompendiumFileEntry) (string, error) {
	if obj, err := object(); err == nil {
		if u, err := model.NewCompendiumFileEntry(obj).CommitURL(); err == nil {
			return u, nil
		}
	}
	return entry.CommitURL()
}

// DownloadFile writes entry into dir under its filename. With validate, the
// MD5 of the written bytes must match the entry checksum; on mismatch the
// file stays on disk and a *ChecksumError is returned.
func (f *FileService) DownloadFile(ctx context.Context, entry *model.CompendiumFileEntry, dir string, validate bool) (string, error) {
	name := filepath.FromSlash(entry.Filename())
	if !filepath.IsLocal(name) {
		return "", fmt.Errorf("%q: %w", entry.Filename(), ErrUnsafeFilename)
	}
	u, err := entry.ContentURL()
	if err != nil {
		return "", fmt.Errorf("%s: %w", entry.Filename(), ErrNoContent)
	}
	out := filepath.Join(dir, name)
	path, err := f.s.req.Download(ctx, u, out)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", entry.Filename(), err)
	}
	if !validate {
		return path, nil
	}
	got, err := md5File(path)
	if err != nil {
		return path, err
	}
	if want := entry.ChecksumDigest(); got != want {
		return path, &ChecksumError{Filename: entry.Filename(), Path: path, Want: want, Got: got}
	}
	return path, nil
}

func md5File(path string) (string, error) {
	fh, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer fh.Close()
	h := md5.New()
	if _, err := io.Copy(h, fh); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// DownloadOptions controls DownloadFiles.
type DownloadOptions struct {
	// Files restricts the download to these filenames. Empty means all.
	Files []string
	// ValidateChecksum checks every file against its MD5 checksum.
	ValidateChecksum bool
	// Concurrency caps simultaneous downloads. Zero starts all at once.
	Concurrency int
}

// DownloadResult is the outcome for one file.
type DownloadResult struct {
	Filename string
	Path     string
	Err      error
}

// DownloadFiles downloads the files of c into dir concurrently. Every
// selected file is attempted; the results are in entry order and the
// returned error joins the per-file failures.
func (f *FileService) DownloadFiles(ctx context.Context, c model.CompendiumResource, dir string, opts DownloadOptions) ([]DownloadResult, error) {
	bucket, err := f.s.FilesOf(ctx, c)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	var entries []*model.CompendiumFileEntry
	for _, e := range bucket.Entries() {
		if len(opts.Files) > 0 && !slices.Contains(opts.Files, e.Filename()) {
			continue
		}
		entries = append(entries, e)
	}

	results := make([]DownloadResult, len(entries))
	var g errgroup.Group
	if opts.Concurrency > 0 {
		g.SetLimit(opts.Concurrency)
	}
	for i, e := range entries {
		i, e := i, e
		g.Go(func() error {
			path, err := f.DownloadFile(ctx, e, dir, opts.ValidateChecksum)
			results[i] = DownloadResult{Filename: e.Filename(), Path: path, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return results, errors.Join(errs...)
}

// eachEntry applies fn to the draft entries named in filenames.
func (f *FileService) eachEntry(ctx context.Context, draft *model.CompendiumDraft, filenames []string, fn func(*model.CompendiumFileEntry) error) error {
	bucket, err := f.s.FilesOf(ctx, draft)
	if err != nil {
		return err
	}
	for _, e := range bucket.Entries() {
		if !slices.Contains(filenames, e.Filename()) {
			continue
		}
		if err := fn(e); err != nil {
			return fmt.Errorf("%s: %w", e.Filename(), err)
		}
	}
	return nil
}

func (f *FileService) reload(ctx context.Context, draft *model.CompendiumDraft) (*model.CompendiumDraft, error) {
	return resolveOne[*model.CompendiumDraft](ctx, f.s, draft, model.LinkSelf)
}
