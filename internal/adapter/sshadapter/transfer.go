// SPDX-License-Identifier: MPL-2.0

package sshadapter

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/pkg/sftp"

	"xec/pkg/command"
	"xec/pkg/result"
)

// Upload copies localPath to remotePath over opts's pooled connection,
// recursing into directories.
func (a *Adapter) Upload(ctx context.Context, opts command.SSHOptions, localPath, remotePath string) error {
	client, release, err := a.newSFTP(ctx, opts)
	if err != nil {
		return err
	}
	defer release()
	defer client.Close()

	info, err := os.Stat(localPath)
	if err != nil {
		return &result.Error{Kind: result.ErrorKindInvalidArgument, Message: "stat local path", Cause: err}
	}
	if info.IsDir() {
		return uploadDir(client, localPath, remotePath)
	}
	return uploadFile(client, localPath, remotePath)
}

// Download copies remotePath to localPath over opts's pooled
// connection, recursing into directories.
func (a *Adapter) Download(ctx context.Context, opts command.SSHOptions, remotePath, localPath string) error {
	client, release, err := a.newSFTP(ctx, opts)
	if err != nil {
		return err
	}
	defer release()
	defer client.Close()

	info, err := client.Stat(remotePath)
	if err != nil {
		return &result.Error{Kind: result.ErrorKindTargetNotFound, Message: "stat remote path", Cause: err}
	}
	if info.IsDir() {
		return downloadDir(client, remotePath, localPath)
	}
	return downloadFile(client, remotePath, localPath)
}

func (a *Adapter) newSFTP(ctx context.Context, opts command.SSHOptions) (*sftp.Client, func(), error) {
	conn, _, release, err := a.pool.Acquire(ctx, opts)
	if err != nil {
		return nil, nil, &result.Error{Kind: result.ErrorKindConnectionError, Message: fmt.Sprintf("connect to %s", opts.Host), Cause: err}
	}
	client, err := sftp.NewClient(conn)
	if err != nil {
		release()
		return nil, nil, &result.Error{Kind: result.ErrorKindConnectionError, Message: "open sftp subsystem", Cause: err}
	}
	return client, release, nil
}

func uploadFile(client *sftp.Client, localPath, remotePath string) error {
	src, err := os.Open(localPath)
	if err != nil {
		return &result.Error{Kind: result.ErrorKindInvalidArgument, Message: "open local file", Cause: err}
	}
	defer src.Close()

	if err := client.MkdirAll(path.Dir(remotePath)); err != nil {
		return &result.Error{Kind: result.ErrorKindInternal, Message: "create remote directory", Cause: err}
	}

	dst, err := client.Create(remotePath)
	if err != nil {
		return &result.Error{Kind: result.ErrorKindInternal, Message: "create remote file", Cause: err}
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return &result.Error{Kind: result.ErrorKindConnectionError, Message: "upload file", Cause: err}
	}
	return nil
}

func downloadFile(client *sftp.Client, remotePath, localPath string) error {
	src, err := client.Open(remotePath)
	if err != nil {
		return &result.Error{Kind: result.ErrorKindTargetNotFound, Message: "open remote file", Cause: err}
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return &result.Error{Kind: result.ErrorKindInternal, Message: "create local directory", Cause: err}
	}

	dst, err := os.Create(localPath)
	if err != nil {
		return &result.Error{Kind: result.ErrorKindInternal, Message: "create local file", Cause: err}
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return &result.Error{Kind: result.ErrorKindConnectionError, Message: "download file", Cause: err}
	}
	return nil
}

func uploadDir(client *sftp.Client, localDir, remoteDir string) error {
	return filepath.WalkDir(localDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(localDir, p)
		if relErr != nil {
			return relErr
		}
		remotePath := path.Join(remoteDir, filepath.ToSlash(rel))
		if d.IsDir() {
			return client.MkdirAll(remotePath)
		}
		return uploadFile(client, p, remotePath)
	})
}

func downloadDir(client *sftp.Client, remoteDir, localDir string) error {
	walker := client.Walk(remoteDir)
	for walker.Step() {
		if err := walker.Err(); err != nil {
			return &result.Error{Kind: result.ErrorKindConnectionError, Message: "walk remote directory", Cause: err}
		}
		rel, err := filepath.Rel(remoteDir, walker.Path())
		if err != nil {
			return err
		}
		localPath := filepath.Join(localDir, rel)
		if walker.Stat().IsDir() {
			if err := os.MkdirAll(localPath, 0o755); err != nil {
				return &result.Error{Kind: result.ErrorKindInternal, Message: "create local directory", Cause: err}
			}
			continue
		}
		if err := downloadFile(client, walker.Path(), localPath); err != nil {
			return err
		}
	}
	return nil
}
