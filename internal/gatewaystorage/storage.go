// Package gatewaystorage resolves a local Artifact to a concrete HTTP
// response shape per the storage backend it lives on (spec.md §4.F): stream
// the file directly, or redirect to a pre-signed object-storage URL. There is
// no mode that proxies a remote blob's body inline, and no backend for a
// non-redirecting blob store. Client construction for each cloud backend is adapted
// from this codebase's L3 cache-tier storage clients.
package gatewaystorage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cloud.google.com/go/storage"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/sas"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"google.golang.org/api/option"

	"github.com/contentgw/gateway/internal/models"
)

// ResolutionMode is the shape of response the Artifact Responder (4.F)
// must produce for a resolved artifact.
type ResolutionMode int

const (
	ModeStreamLocal ResolutionMode = iota // read LocalPath and stream it, filename via Content-Disposition
	ModeRedirect                          // 302 to RedirectURL
)

// Resolution is what a Backend hands back to the Artifact Responder.
type Resolution struct {
	Mode        ResolutionMode
	LocalPath   string
	RedirectURL string
}

// Backend resolves one Artifact into a Resolution. Local, S3, Azure and GCS
// storage each get one implementation.
type Backend interface {
	Kind() models.StorageBackendKind
	Resolve(ctx context.Context, artifact *models.Artifact, contentType, filename string) (*Resolution, error)
}

// Registry looks backends up by kind so the Artifact Responder doesn't need
// a type switch of its own.
type Registry struct {
	backends map[models.StorageBackendKind]Backend
}

func NewRegistry(backends ...Backend) *Registry {
	r := &Registry{backends: make(map[models.StorageBackendKind]Backend, len(backends))}
	for _, b := range backends {
		r.backends[b.Kind()] = b
	}
	return r
}

func (r *Registry) Get(kind models.StorageBackendKind) (Backend, bool) {
	b, ok := r.backends[kind]
	return b, ok
}

// LocalBackend serves artifacts straight off the filesystem.
type LocalBackend struct {
	BasePath string
}

func NewLocalBackend(basePath string) *LocalBackend {
	return &LocalBackend{BasePath: basePath}
}

func (b *LocalBackend) Kind() models.StorageBackendKind { return models.StorageBackendLocal }

func (b *LocalBackend) Resolve(_ context.Context, artifact *models.Artifact, _, _ string) (*Resolution, error) {
	return &Resolution{
		Mode:      ModeStreamLocal,
		LocalPath: filepath.Join(b.BasePath, artifact.StoragePath),
	}, nil
}

// TempFile opens a fresh file under BasePath for a 4.G/4.H fetch to stream
// into while it's still in flight. The final, content-addressed name isn't
// known until the download finishes and its sha256 is computed, so callers
// write here first and Commit once the digest is known.
func (b *LocalBackend) TempFile() (*os.File, error) {
	if err := os.MkdirAll(b.BasePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage base path: %w", err)
	}
	return os.CreateTemp(b.BasePath, ".download-*")
}

// Commit moves a completed TempFile into its content-addressed final path,
// BasePath/sha256, per 4.I. If another fetch of the same content already
// landed there first, tmpPath is discarded instead of overwriting — the two
// files are byte-identical by construction, so the race needs no merge, only
// the loser's temp file unlinked.
func (b *LocalBackend) Commit(tmpPath, sha256 string) error {
	dest := filepath.Join(b.BasePath, sha256)
	if _, err := os.Stat(dest); err == nil {
		return os.Remove(tmpPath)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to commit downloaded artifact: %w", err)
	}
	return nil
}

// Abort discards an in-flight TempFile, for fetches that end in an error or
// a digest mismatch before Commit is reached.
func (b *LocalBackend) Abort(tmpPath string) {
	os.Remove(tmpPath)
}

// S3Backend redirects to a pre-signed GET URL carrying response-header
// overrides, per spec.md §4.F: "302 to a pre-signed URL parameterized with
// response-override headers".
type S3Backend struct {
	bucket  string
	presign *s3.PresignClient
	expiry  time.Duration
}

type S3Config struct {
	Bucket string
	Region string
}

func NewS3Backend(ctx context.Context, cfg S3Config) (*S3Backend, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg)
	return &S3Backend{
		bucket:  cfg.Bucket,
		presign: s3.NewPresignClient(client),
		expiry:  15 * time.Minute,
	}, nil
}

func (b *S3Backend) Kind() models.StorageBackendKind { return models.StorageBackendS3 }

func (b *S3Backend) Resolve(ctx context.Context, artifact *models.Artifact, contentType, filename string) (*Resolution, error) {
	disposition := fmt.Sprintf("attachment;filename=%s", filename)
	req, err := b.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket:                     aws.String(b.bucket),
		Key:                        aws.String(artifact.StoragePath),
		ResponseContentDisposition: aws.String(disposition),
		ResponseContentType:        aws.String(contentType),
	}, s3.WithPresignExpires(b.expiry))
	if err != nil {
		return nil, fmt.Errorf("failed to presign S3 URL: %w", err)
	}
	return &Resolution{Mode: ModeRedirect, RedirectURL: req.URL}, nil
}

// AzureBackend redirects to a SAS URL with no response-header overrides,
// per spec.md §4.F ("Azure, GCS: 302 to a pre-signed URL (no query-parameter
// overrides)").
type AzureBackend struct {
	container string
	client    *azblob.Client
	cred      *azblob.SharedKeyCredential
	expiry    time.Duration
}

type AzureConfig struct {
	Container string
	Account   string
	Key       string
}

func NewAzureBackend(cfg AzureConfig) (*AzureBackend, error) {
	cred, err := azblob.NewSharedKeyCredential(cfg.Account, cfg.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to build Azure shared key credential: %w", err)
	}
	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net", cfg.Account)
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure client: %w", err)
	}
	return &AzureBackend{container: cfg.Container, client: client, cred: cred, expiry: 15 * time.Minute}, nil
}

func (b *AzureBackend) Kind() models.StorageBackendKind { return models.StorageBackendAzure }

func (b *AzureBackend) Resolve(_ context.Context, artifact *models.Artifact, _, _ string) (*Resolution, error) {
	blobClient := b.client.ServiceClient().NewContainerClient(b.container).NewBlobClient(artifact.StoragePath)
	sasURL, err := blobClient.GetSASURL(
		sas.BlobPermissions{Read: true},
		time.Now().Add(b.expiry),
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to sign Azure blob URL: %w", err)
	}
	return &Resolution{Mode: ModeRedirect, RedirectURL: sasURL}, nil
}

// GCSBackend redirects to a signed URL with no response-header overrides.
type GCSBackend struct {
	bucket     string
	accessID   string
	privateKey []byte
	expiry     time.Duration
}

type GCSConfig struct {
	Bucket              string
	CredentialsFile     string
	ServiceAccountEmail string
}

func NewGCSBackend(ctx context.Context, cfg GCSConfig) (*GCSBackend, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	// Verify credentials are usable before accepting the backend; the client
	// itself isn't needed for SignedURL (which signs locally with the key),
	// but failing fast here beats failing on the first request.
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	defer client.Close()

	var key []byte
	if cfg.CredentialsFile != "" {
		key, err = os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read GCS credentials file: %w", err)
		}
	}
	return &GCSBackend{
		bucket:     cfg.Bucket,
		accessID:   cfg.ServiceAccountEmail,
		privateKey: key,
		expiry:     15 * time.Minute,
	}, nil
}

func (b *GCSBackend) Kind() models.StorageBackendKind { return models.StorageBackendGCS }

func (b *GCSBackend) Resolve(_ context.Context, artifact *models.Artifact, _, _ string) (*Resolution, error) {
	opts := &storage.SignedURLOptions{
		Scheme:         storage.SigningSchemeV4,
		Method:         "GET",
		GoogleAccessID: b.accessID,
		PrivateKey:     b.privateKey,
		Expires:        time.Now().Add(b.expiry),
	}
	url, err := storage.SignedURL(b.bucket, artifact.StoragePath, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to sign GCS URL: %w", err)
	}
	return &Resolution{Mode: ModeRedirect, RedirectURL: url}, nil
}
