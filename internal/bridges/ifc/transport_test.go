package ifc

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"
)

// pipeSession builds a Session over one end of an in-memory pipe.
func pipeSession(t *testing.T, conn net.Conn, readTimeout time.Duration) *Session {
	t.Helper()
	return &Session{
		conn:        conn,
		reader:      bufio.NewReader(conn),
		readTimeout: readTimeout,
		done:        newCloseOnce(),
	}
}

func TestSession_ReadLineSplitsOnCR(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	sess := pipeSession(t, client, time.Second)
	defer sess.Close()

	go func() {
		server.Write([]byte("OK\rHEY LAMP ON\r"))
	}()

	line, err := sess.ReadLine()
	if err != nil {
		t.Fatalf("ReadLine() error = %v", err)
	}
	if line != "OK" {
		t.Errorf("ReadLine() = %q, want OK", line)
	}

	line, err = sess.ReadLine()
	if err != nil {
		t.Fatalf("ReadLine() error = %v", err)
	}
	if line != "HEY LAMP ON" {
		t.Errorf("ReadLine() = %q, want HEY LAMP ON", line)
	}
}

// A stray LF after CR must not produce a phantom line: it becomes
// leading whitespace on the next line and is trimmed.
func TestSession_ReadLineTrimsStrayLF(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	sess := pipeSession(t, client, time.Second)
	defer sess.Close()

	go func() {
		server.Write([]byte("ON\r\nERROR\r"))
	}()

	line, err := sess.ReadLine()
	if err != nil {
		t.Fatalf("ReadLine() error = %v", err)
	}
	if line != "ON" {
		t.Errorf("ReadLine() = %q, want ON", line)
	}

	line, err = sess.ReadLine()
	if err != nil {
		t.Fatalf("ReadLine() error = %v", err)
	}
	if line != "ERROR" {
		t.Errorf("ReadLine() = %q, want ERROR (LF not trimmed)", line)
	}
}

func TestSession_ReadLineTimeout(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	sess := pipeSession(t, client, 50*time.Millisecond)
	defer sess.Close()

	_, err := sess.ReadLine()
	if err == nil {
		t.Fatal("ReadLine() expected timeout error")
	}
	netErr, ok := err.(net.Error)
	if !ok || !netErr.Timeout() {
		t.Errorf("ReadLine() error = %v, want net timeout", err)
	}
}

// A read deadline firing mid-line must not truncate the line: the bytes
// consumed so far carry over into the next read, which returns the whole
// line once the tail arrives.
func TestSession_ReadLineKeepsPartialAcrossTimeout(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	sess := pipeSession(t, client, 100*time.Millisecond)
	defer sess.Close()

	go func() {
		server.Write([]byte("RED: 255 GREEN: 128"))
	}()

	_, err := sess.ReadLine()
	netErr, ok := err.(net.Error)
	if !ok || !netErr.Timeout() {
		t.Fatalf("ReadLine() error = %v, want net timeout", err)
	}

	go func() {
		server.Write([]byte(" BLUE: 64 WHITE: 0\rOK\r"))
	}()

	line, err := sess.ReadLine()
	if err != nil {
		t.Fatalf("ReadLine() error = %v", err)
	}
	if want := "RED: 255 GREEN: 128 BLUE: 64 WHITE: 0"; line != want {
		t.Errorf("ReadLine() = %q, want %q", line, want)
	}

	// The fragment must not leak into the following line.
	line, err = sess.ReadLine()
	if err != nil {
		t.Fatalf("ReadLine() error = %v", err)
	}
	if line != "OK" {
		t.Errorf("ReadLine() = %q, want OK", line)
	}
}

func TestSession_WriteLineAppendsCR(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	sess := pipeSession(t, client, time.Second)
	defer sess.Close()

	got := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 64)
		n, _ := server.Read(buf)
		got <- buf[:n]
	}()

	if err := sess.WriteLine("SET LAMP ON"); err != nil {
		t.Fatalf("WriteLine() error = %v", err)
	}

	select {
	case data := <-got:
		want := "SET LAMP ON\r"
		if string(data) != want {
			t.Errorf("wrote %q, want %q (CR terminator, no LF)", data, want)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for write")
	}
}

func TestSession_CloseIdempotent(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	sess := pipeSession(t, client, time.Second)

	if err := sess.Close(); err != nil {
		t.Errorf("first Close() error = %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if !sess.Closed() {
		t.Error("Closed() = false after Close()")
	}
}

func TestProbe(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer listener.Close()

	go func() {
		conn, err := listener.Accept()
		if err == nil {
			conn.Close()
		}
	}()

	if err := Probe(context.Background(), listener.Addr().String(), time.Second); err != nil {
		t.Errorf("Probe() error = %v", err)
	}
}

func TestProbe_Unreachable(t *testing.T) {
	// Port from a just-closed listener: nothing is accepting.
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := listener.Addr().String()
	listener.Close()

	if err := Probe(context.Background(), addr, 200*time.Millisecond); err == nil {
		t.Error("Probe() expected error for unreachable address")
	}
}
