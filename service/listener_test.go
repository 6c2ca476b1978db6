package service

import (
	"io"
	"testing"
	"time"
)

func TestListenerPipe(t *testing.T) {
	l, client := ListenerPipe()
	server, err := l.Accept()
	if err != nil {
		t.Fatal(err)
	}
	go func() {
		io.WriteString(client, "ping")
	}()
	buf := make([]byte, 4)
	if _, err := io.ReadFull(server, buf); err != nil {
		t.Fatal(err)
	}
	if string(buf) != "ping" {
		t.Errorf("got %q, want ping", buf)
	}

	done := make(chan error)
	go func() {
		_, err := l.Accept()
		done <- err
	}()
	select {
	case <-done:
		t.Fatal("second Accept returned before Close")
	case <-time.After(50 * time.Millisecond):
	}
	l.Close()
	if err := <-done; err == nil {
		t.Error("second Accept succeeded")
	}
	l.Close()
}

func TestStdioListener(t *testing.T) {
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	l := StdioListener(inR, outW)
	if got := l.Addr().String(); got != "stdio" {
		t.Errorf("Addr() = %q", got)
	}
	conn, err := l.Accept()
	if err != nil {
		t.Fatal(err)
	}

	go io.WriteString(inW, "in")
	buf := make([]byte, 2)
	if _, err := io.ReadFull(conn, buf); err != nil || string(buf) != "in" {
		t.Fatalf("read %q, %v", buf, err)
	}

	go conn.Write([]byte("out"))
	buf = make([]byte, 3)
	if _, err := io.ReadFull(outR, buf); err != nil || string(buf) != "out" {
		t.Fatalf("read %q, %v", buf, err)
	}

	if err := conn.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := inW.Write([]byte("x")); err == nil {
		t.Error("write to closed stdin succeeded")
	}
}
