package ssh

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"github.com/chiliseed/chiliseed-cli/pkg/domain/types"
	"github.com/chiliseed/chiliseed-cli/pkg/utils/logging"
)

const uploadChunkSize = 1024

// Upload copies localPath to remotePath on the worker over the SCP sink protocol
func (s *Session) Upload(ctx context.Context, localPath, remotePath string, mode os.FileMode) error {
	f, err := os.Open(localPath)
	if err != nil {
		return uploadError(err, "failed to open local file", localPath, remotePath)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return uploadError(err, "failed to stat local file", localPath, remotePath)
	}

	sess, err := s.client.NewSession()
	if err != nil {
		return uploadError(err, "failed to open session channel", localPath, remotePath)
	}
	defer sess.Close()

	stdin, err := sess.StdinPipe()
	if err != nil {
		return uploadError(err, "failed to attach stdin", localPath, remotePath)
	}
	stdout, err := sess.StdoutPipe()
	if err != nil {
		return uploadError(err, "failed to attach stdout", localPath, remotePath)
	}
	var stderr bytes.Buffer
	sess.Stderr = &stderr

	if err := sess.Start("scp -t " + shellQuote(remotePath)); err != nil {
		return uploadError(err, "failed to start scp", localPath, remotePath)
	}

	stop := context.AfterFunc(ctx, func() {
		_ = sess.Close()
	})
	defer stop()

	r := bufio.NewReader(stdout)
	if err := readAck(r); err != nil {
		return uploadError(err, "scp refused transfer", localPath, remotePath)
	}

	header := fmt.Sprintf("C%04o %d %s\n", mode.Perm(), info.Size(), path.Base(remotePath))
	if _, err := io.WriteString(stdin, header); err != nil {
		return uploadError(err, "failed to send file header", localPath, remotePath)
	}
	if err := readAck(r); err != nil {
		return uploadError(err, "scp rejected file header", localPath, remotePath)
	}

	buf := make([]byte, uploadChunkSize)
	var sent int64
	for {
		n, rerr := f.Read(buf)
		if n > 0 {
			if _, err := stdin.Write(buf[:n]); err != nil {
				return uploadError(err, "failed to send file content", localPath, remotePath)
			}
			sent += int64(n)
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			return uploadError(rerr, "failed to read local file", localPath, remotePath)
		}
	}
	if sent != info.Size() {
		return goerr.New("local file changed during upload",
			goerr.T(types.ErrTagUpload),
			goerr.V("local", localPath),
			goerr.V("expected", info.Size()),
			goerr.V("sent", sent),
		)
	}

	if _, err := stdin.Write([]byte{0}); err != nil {
		return uploadError(err, "failed to finish transfer", localPath, remotePath)
	}
	if err := readAck(r); err != nil {
		return uploadError(err, "scp did not confirm transfer", localPath, remotePath)
	}
	if err := stdin.Close(); err != nil {
		return uploadError(err, "failed to close stdin", localPath, remotePath)
	}

	if err := sess.Wait(); err != nil {
		return goerr.Wrap(err, "scp exited with error",
			goerr.T(types.ErrTagUpload),
			goerr.V("local", localPath),
			goerr.V("remote", remotePath),
			goerr.V("stderr", strings.TrimSpace(stderr.String())),
		)
	}

	logging.From(ctx).Debug("Uploaded file", "local", localPath, "remote", remotePath, "size", sent)
	return nil
}

// readAck reads one SCP response. 0 is OK, 1 and 2 are followed by a message line.
func readAck(r *bufio.Reader) error {
	b, err := r.ReadByte()
	if err != nil {
		return goerr.Wrap(err, "failed to read scp response")
	}
	if b == 0 {
		return nil
	}

	msg, _ := r.ReadString('\n')
	return goerr.New("scp error", goerr.V("code", b), goerr.V("message", strings.TrimSpace(msg)))
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func uploadError(err error, msg, local, remote string) error {
	return goerr.Wrap(err, msg,
		goerr.T(types.ErrTagUpload),
		goerr.V("local", local),
		goerr.V("remote", remote),
	)
}
