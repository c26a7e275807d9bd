package proxy

import (
	"io"
	"net"

	"golang.org/x/sync/errgroup"

	"egress-gate/internal/metrics"
)

// tunnelChunkSize is the fixed read size for tunnel pumps.
const tunnelChunkSize = 4096

// runTunnel pumps bytes in both directions until each side reaches
// end-of-stream or errors. The client side is read through clientReader so
// bytes the header read may have buffered are not lost. It returns when
// both directions have finished.
func runTunnel(client net.Conn, clientReader io.Reader, remote net.Conn) {
	g := new(errgroup.Group)
	g.Go(func() error {
		pump(remote, clientReader, "client_to_remote")
		return nil
	})
	g.Go(func() error {
		pump(client, remote, "remote_to_client")
		return nil
	})
	_ = g.Wait()
}

// pump copies src to dst in fixed-size chunks until end-of-stream or any
// I/O error. Errors end the direction silently; the destination is closed
// when the direction finishes, whatever the reason.
func pump(dst net.Conn, src io.Reader, direction string) {
	defer dst.Close()

	var total int64
	buf := make([]byte, tunnelChunkSize)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			total += int64(n)
			if _, werr := dst.Write(buf[:n]); werr != nil {
				break
			}
		}
		if err != nil {
			break
		}
	}
	metrics.RecordTunnelBytes(direction, total)
}
