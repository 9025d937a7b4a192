package ssh

import (
	"fmt"
	"io"
	"os"
	"path"

	"github.com/pkg/sftp"
	xssh "golang.org/x/crypto/ssh"
)

// PushFile uploads a local file to a remote path via SFTP and
// verifies the remote size matches.
func PushFile(client *xssh.Client, localPath, remotePath string) error {
	sf, err := sftp.NewClient(client)
	if err != nil {
		return fmt.Errorf("sftp client: %w", err)
	}
	defer sf.Close()

	if err := sf.MkdirAll(path.Dir(remotePath)); err != nil {
		return fmt.Errorf("mkdir remote: %w", err)
	}
	src, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open local: %w", err)
	}
	defer src.Close()
	dst, err := sf.Create(remotePath)
	if err != nil {
		return fmt.Errorf("create remote: %w", err)
	}
	n, err := io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = sf.Remove(remotePath)
		return fmt.Errorf("copy: %w", err)
	}

	info, err := sf.Stat(remotePath)
	if err != nil {
		return fmt.Errorf("stat remote: %w", err)
	}
	if info.Size() != n {
		_ = sf.Remove(remotePath)
		return fmt.Errorf("short transfer: wrote %d bytes, remote has %d", n, info.Size())
	}
	return nil
}
