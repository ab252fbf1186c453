package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/wentf9/sftp-relay/internal/fault"
	"github.com/wentf9/sftp-relay/pkg/config"
)

type fakeHandler struct {
	HandleFunc func(ctx context.Context, line string) error

	mu    sync.Mutex
	lines []string
}

func (f *fakeHandler) Handle(ctx context.Context, line string) error {
	f.mu.Lock()
	f.lines = append(f.lines, line)
	f.mu.Unlock()
	if f.HandleFunc != nil {
		return f.HandleFunc(ctx, line)
	}
	return nil
}

func (f *fakeHandler) Lines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T, workers int) config.Configuration {
	t.Helper()
	cfg, err := config.FromMap(map[string]string{
		config.KeyAppPort:    "0",
		config.KeyAppWorkers: strconv.Itoa(workers),
	})
	if err != nil {
		t.Fatalf("FromMap: %v", err)
	}
	return *cfg
}

// startServer 在随机端口启动 Server,返回地址、停止函数和 Serve 的返回值
func startServer(t *testing.T, h Handler, workers int, opts ...Option) (string, context.CancelFunc, <-chan error) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := New(testConfig(t, workers), h, append([]Option{WithLogger(quietLogger())}, opts...)...)

	done := make(chan error, 1)
	go func() {
		done <- s.Serve(ctx, ln)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})
	return ln.Addr().String(), cancel, done
}

// send 发送 payload 并读取直到服务端关闭连接,返回服务端写回的数据
func send(t *testing.T, addr, payload string) string {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if payload != "" {
		if _, err := io.WriteString(conn, payload); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	conn.(*net.TCPConn).CloseWrite()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	resp, err := io.ReadAll(conn)
	// 服务端只读一行就关闭,剩余未读数据会触发 RST
	if err != nil && !errors.Is(err, syscall.ECONNRESET) {
		t.Fatalf("read response: %v", err)
	}
	return string(resp)
}

func TestServe_DispatchesOneLine(t *testing.T) {
	h := &fakeHandler{}
	addr, _, _ := startServer(t, h, 1)

	if resp := send(t, addr, "PROCESS_FILE:data/report.xml\r\nignored second line\n"); resp != "" {
		t.Errorf("expected no response bytes, got %q", resp)
	}
	if diff := cmp.Diff([]string{"PROCESS_FILE:data/report.xml"}, h.Lines()); diff != "" {
		t.Errorf("handled lines mismatch (-want +got):\n%s", diff)
	}
}

func TestServe_LineEndings(t *testing.T) {
	h := &fakeHandler{}
	addr, _, _ := startServer(t, h, 1)

	send(t, addr, "")
	send(t, addr, "no newline")
	send(t, addr, "\n")

	if diff := cmp.Diff([]string{"", "no newline", ""}, h.Lines()); diff != "" {
		t.Errorf("handled lines mismatch (-want +got):\n%s", diff)
	}
}

func TestServe_LineTooLong(t *testing.T) {
	h := &fakeHandler{}
	addr, _, _ := startServer(t, h, 1, WithMaxLineSize(16))

	send(t, addr, strings.Repeat("x", 64)+"\n")
	send(t, addr, "PROCESS_FILE:a\n")

	if diff := cmp.Diff([]string{"PROCESS_FILE:a"}, h.Lines()); diff != "" {
		t.Errorf("handled lines mismatch (-want +got):\n%s", diff)
	}
}

func TestServe_SequentialOrdering(t *testing.T) {
	var mu sync.Mutex
	var events []string
	record := func(e string) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	}

	releaseA := make(chan struct{})
	h := &fakeHandler{HandleFunc: func(ctx context.Context, line string) error {
		record("start " + line)
		if line == "A" {
			<-releaseA
		}
		record("end " + line)
		return nil
	}}
	addr, _, _ := startServer(t, h, 1)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		send(t, addr, "A\n")
	}()
	waitFor(t, func() bool { return len(h.Lines()) == 1 })

	wg.Add(1)
	go func() {
		defer wg.Done()
		send(t, addr, "B\n")
	}()
	// B 已连接但在 A 完成前不会被处理
	time.Sleep(50 * time.Millisecond)
	if n := len(h.Lines()); n != 1 {
		t.Errorf("B handled while A in flight, lines=%v", h.Lines())
	}
	close(releaseA)
	wg.Wait()

	want := []string{"start A", "end A", "start B", "end B"}
	mu.Lock()
	defer mu.Unlock()
	if diff := cmp.Diff(want, events); diff != "" {
		t.Errorf("event order mismatch (-want +got):\n%s", diff)
	}
}

func TestServe_FailureDoesNotStopListener(t *testing.T) {
	h := &fakeHandler{HandleFunc: func(ctx context.Context, line string) error {
		if line == "bad" {
			return fault.New(fault.LocalFileFailure, line, errors.New("boom"))
		}
		return nil
	}}
	addr, _, _ := startServer(t, h, 1)

	send(t, addr, "bad\n")
	send(t, addr, "good\n")
	if diff := cmp.Diff([]string{"bad", "good"}, h.Lines()); diff != "" {
		t.Errorf("handled lines mismatch (-want +got):\n%s", diff)
	}
}

func TestServe_StopsOnCancel(t *testing.T) {
	addr, cancel, done := startServer(t, &fakeHandler{}, 1)
	send(t, addr, "x\n")

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve returned %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	if _, err := net.Dial("tcp", addr); err == nil {
		t.Error("listener still accepting after shutdown")
	}
}

func TestServe_CancelAbortsInFlight(t *testing.T) {
	started := make(chan struct{})
	aborted := make(chan struct{})
	h := &fakeHandler{HandleFunc: func(ctx context.Context, line string) error {
		close(started)
		<-ctx.Done()
		close(aborted)
		return ctx.Err()
	}}
	addr, cancel, done := startServer(t, h, 1)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	io.WriteString(conn, "PROCESS_FILE:big.bin\n")
	<-started

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	select {
	case <-aborted:
	default:
		t.Error("Serve returned before the in-flight request finished")
	}
}

func TestServe_ConcurrentWorkers(t *testing.T) {
	var inFlight sync.WaitGroup
	inFlight.Add(2)
	both := make(chan struct{})
	go func() {
		inFlight.Wait()
		close(both)
	}()

	h := &fakeHandler{HandleFunc: func(ctx context.Context, line string) error {
		inFlight.Done()
		select {
		case <-both:
			return nil
		case <-time.After(5 * time.Second):
			return errors.New("requests were not handled concurrently")
		}
	}}
	addr, _, _ := startServer(t, h, 2)

	errs := make(chan string, 2)
	for _, line := range []string{"A\n", "B\n"} {
		go func() { errs <- send(t, addr, line) }()
	}
	<-errs
	<-errs

	select {
	case <-both:
	default:
		t.Fatal("expected both requests in flight at the same time")
	}
}

func TestListenAndServe_BindFailure(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	cfg, err := config.FromMap(map[string]string{config.KeyAppPort: strconv.Itoa(port)})
	if err != nil {
		t.Fatalf("FromMap: %v", err)
	}
	s := New(*cfg, &fakeHandler{}, WithLogger(quietLogger()))
	err = s.ListenAndServe(context.Background())
	if got := fault.KindOf(err); got != fault.StartupFailure {
		t.Fatalf("expected StartupFailure, got %v (%v)", got, err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
