// Package track implements FrameTrackProducer: a per-viewer goroutine
// that pulls the latest JPEG for a session code, resizes it, and feeds
// it into an H.264 RTP stream carried over a pion webrtc.TrackLocalStaticRTP.
//
// Builds on a pattern that shells out to a GStreamer subprocess to
// turn raw video frames into RTP — reworked from "decode incoming
// RTP, CV-process, re-encode" into "decode a JPEG snapshot, CV-resize,
// encode", since there is no incoming video track here, only still
// frames pushed over HTTP.
package track

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// gstEncoder wraps a gst-launch-1.0 pipeline that reads raw BGR frames
// on stdin and emits H.264 RTP packets over localhost UDP — the
// encoder half of a decode/encode pipeline (the decoder half has no
// analogue here: the input is already raw pixels, not an incoming RTP
// stream).
type gstEncoder struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	rtpConn net.PacketConn
	port    int

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func freeUDPPort() (int, error) {
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer conn.Close()
	_, portStr, err := net.SplitHostPort(conn.LocalAddr().String())
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(portStr)
}

func startGstEncoder(ctx context.Context, width, height, fps int) (*gstEncoder, error) {
	port, err := freeUDPPort()
	if err != nil {
		return nil, fmt.Errorf("track: reserve udp port: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)

	cmd := exec.CommandContext(ctx, "gst-launch-1.0",
		"-q",
		"fdsrc", "fd=0", "do-timestamp=true",
		"!", "videoparse", "format=bgr",
		fmt.Sprintf("width=%d", width),
		fmt.Sprintf("height=%d", height),
		fmt.Sprintf("framerate=%d/1", fps),
		"!", "videoconvert",
		"!", "x264enc", "tune=zerolatency", "speed-preset=ultrafast",
		"key-int-max=30", "bframes=0", "cabac=false", "byte-stream=true",
		"rc-lookahead=0", "aud=true", "ref=1", "bitrate=800",
		"!", "h264parse", "config-interval=1",
		"!", "rtph264pay", "pt=96", "config-interval=1", "mtu=1200",
		"!", "queue", "leaky=downstream", "max-size-buffers=0", "max-size-time=0", "max-size-bytes=0",
		"!", "udpsink", "host=127.0.0.1", fmt.Sprintf("port=%d", port), "sync=false", "async=false",
	)
	cmd.Stderr = os.Stderr
	cmd.Env = append(os.Environ(), "GST_DEBUG=1")

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("track: encoder stdin: %w", err)
	}

	rtpConn, err := net.ListenPacket("udp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("track: listen rtp: %w", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		rtpConn.Close()
		return nil, fmt.Errorf("track: start encoder: %w", err)
	}

	return &gstEncoder{cmd: cmd, stdin: stdin, rtpConn: rtpConn, port: port, cancel: cancel}, nil
}

// writeFrame pushes one raw BGR frame (width*height*3 bytes) to the encoder.
func (g *gstEncoder) writeFrame(raw []byte) error {
	_, err := g.stdin.Write(raw)
	return err
}

// pumpRTP reads encoded RTP packets until the context is canceled,
// forwarding each onto localTrack.
func (g *gstEncoder) pumpRTP(ctx context.Context, localTrack *webrtc.TrackLocalStaticRTP) {
	g.wg.Add(1)
	defer g.wg.Done()

	buf := make([]byte, 1500)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		g.rtpConn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		n, _, err := g.rtpConn.ReadFrom(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return
		}
		pkt := &rtp.Packet{}
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			continue
		}
		if err := localTrack.WriteRTP(pkt); err != nil {
			return
		}
	}
}

func (g *gstEncoder) Close() {
	g.cancel()
	g.stdin.Close()
	g.rtpConn.Close()
	g.wg.Wait()
	_ = g.cmd.Wait()
}
