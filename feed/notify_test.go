package feed

import (
	"bufio"
	"net"
	"strings"
	"testing"
	"time"
)

func TestBuildStructuredData_DefaultSDIDWhenEmpty(t *testing.T) {
	sd := buildStructuredData("", map[string]string{"job": "feeds"})
	if !strings.HasPrefix(sd, "[feed ") {
		t.Fatalf("expected default sdID=feed, got: %q", sd)
	}
}

func TestBuildStructuredData_SkipsEmptyAndSortsExtraKeys(t *testing.T) {
	sd := buildStructuredData("feed", map[string]string{
		"job":      "feeds",
		"event":    "run",
		"snapshot": "", // skipped
		"removed":  "2",
		"zzz":      "3",
		"aaa":      "1",
	})
	if strings.Contains(sd, " snapshot=") {
		t.Fatalf("expected empty snapshot skipped, got: %q", sd)
	}
	if !strings.HasPrefix(sd, `[feed job="feeds" event="run" removed="2"`) {
		t.Fatalf("expected preferred key order, got: %q", sd)
	}
	ia := strings.Index(sd, ` aaa="1"`)
	iz := strings.Index(sd, ` zzz="3"`)
	if ia == -1 || iz == -1 || ia > iz {
		t.Fatalf("expected extra keys sorted, got: %q", sd)
	}
}

func TestEscapeSDParam(t *testing.T) {
	got := escapeSDParam("a\"b]c\\d\ne")
	if got != `a\"b\]c\\d e` {
		t.Fatalf("unexpected escape: %q", got)
	}
}

func TestSyslogNotifierSendsOneLine(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	got := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			got <- ""
			return
		}
		defer conn.Close()
		line, _ := bufio.NewReader(conn).ReadString('\n')
		got <- line
	}()

	n := NewSyslogNotifier(ln.Addr().String(), "feed drift")
	if err := n.Notify(`[feed event="run"]`, "hello", 2*time.Second); err != nil {
		t.Fatal(err)
	}
	line := <-got
	if !strings.HasPrefix(line, "<134>1 ") {
		t.Fatalf("unexpected priority/version: %q", line)
	}
	if !strings.Contains(line, ` feed_drift - - [feed event="run"] hello`) {
		t.Fatalf("unexpected line: %q", line)
	}
}
