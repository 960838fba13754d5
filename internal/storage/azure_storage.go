package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/cenkalti/backoff/v4"
)

// ArtifactPublisher copies generated reports somewhere the front end can read
// them.
type ArtifactPublisher interface {
	Publish(ctx context.Context, name, contentType string, data []byte) error
}

// NopPublisher discards artifacts. Used when no blob storage is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, string, []byte) error { return nil }

// AzurePublisher uploads artifacts as block blobs into one container.
type AzurePublisher struct {
	client     *azblob.Client
	container  string
	newBackOff func() backoff.BackOff
}

// NewAzurePublisher authenticates with a shared key against the account's
// public blob endpoint.
func NewAzurePublisher(accountName, accountKey, container string) (*AzurePublisher, error) {
	return NewAzurePublisherWithURL(
		fmt.Sprintf("https://%s.blob.core.windows.net/", accountName),
		accountName, accountKey, container,
	)
}

// NewAzurePublisherWithURL targets an explicit service URL, e.g. Azurite.
func NewAzurePublisherWithURL(serviceURL, accountName, accountKey, container string) (*AzurePublisher, error) {
	if container == "" {
		return nil, fmt.Errorf("container name is required")
	}

	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, fmt.Errorf("invalid storage credentials: %w", err)
	}

	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, credential, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create blob client: %w", err)
	}

	return &AzurePublisher{
		client:    client,
		container: container,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxElapsedTime = 30 * time.Second
			return b
		},
	}, nil
}

// EnsureContainer creates the container if it does not exist yet.
func (p *AzurePublisher) EnsureContainer(ctx context.Context) error {
	_, err := p.client.CreateContainer(ctx, p.container, nil)
	if err != nil && !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
		return fmt.Errorf("create container %s: %w", p.container, err)
	}
	return nil
}

func (p *AzurePublisher) Publish(ctx context.Context, name, contentType string, data []byte) error {
	upload := func() error {
		_, err := p.client.UploadBuffer(ctx, p.container, name, data, &azblob.UploadBufferOptions{
			HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
		})
		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}

	if err := backoff.Retry(upload, backoff.WithContext(p.newBackOff(), ctx)); err != nil {
		return fmt.Errorf("upload %s/%s: %w", p.container, name, err)
	}
	return nil
}
