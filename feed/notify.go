package feed

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"sort"
	"strings"
	"time"
)

const defaultSDID = "feed"

// Notifier delivers operator-facing run messages.
type Notifier interface {
	Notify(structuredData string, message string, timeout time.Duration) error
}

// SyslogNotifier writes RFC 5424 lines to a TCP syslog receiver.
type SyslogNotifier struct {
	addr    string
	appName string
}

func NewSyslogNotifier(addr string, appName string) *SyslogNotifier {
	if appName == "" {
		appName = "feed-drift"
	}
	return &SyslogNotifier{addr: addr, appName: appName}
}

// Notify sends one line. A non-positive timeout dials without a deadline.
func (c *SyslogNotifier) Notify(structuredData string, message string, timeout time.Duration) error {
	var conn net.Conn
	var err error
	if timeout > 0 {
		conn, err = net.DialTimeout("tcp", c.addr, timeout)
	} else {
		conn, err = net.Dial("tcp", c.addr)
	}
	if err != nil {
		return err
	}
	defer conn.Close()
	if timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(timeout))
	}

	w := bufio.NewWriter(conn)
	if _, err := w.WriteString(formatSyslogLine(c.appName, structuredData, message, time.Now())); err != nil {
		return err
	}
	return w.Flush()
}

func formatSyslogLine(appName string, structuredData string, message string, now time.Time) string {
	host, _ := os.Hostname()
	pri := 134 // local0.info
	if structuredData == "" {
		structuredData = "-"
	}
	return fmt.Sprintf("<%d>1 %s %s %s - - %s %s\n",
		pri,
		now.UTC().Format(time.RFC3339Nano),
		sanitizeSyslogToken(host),
		sanitizeSyslogToken(appName),
		structuredData,
		strings.TrimSpace(message))
}

func sanitizeSyslogToken(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "-"
	}
	return strings.ReplaceAll(s, " ", "_")
}

var sdPreferredOrder = []string{"job", "service", "event", "snapshot", "previous", "input_sha", "rows", "workspace", "removed", "status"}

// buildStructuredData renders one SD-ELEMENT. Known keys come first in a
// fixed order, the rest sorted; empty values are dropped.
func buildStructuredData(sdID string, kv map[string]string) string {
	if sdID == "" {
		sdID = defaultSDID
	}
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(sdID)
	write := func(k, v string) {
		b.WriteString(" ")
		b.WriteString(k)
		b.WriteString("=\"")
		b.WriteString(escapeSDParam(v))
		b.WriteString("\"")
	}
	seen := make(map[string]struct{}, len(kv))
	for _, k := range sdPreferredOrder {
		v, ok := kv[k]
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		seen[k] = struct{}{}
		write(k, v)
	}
	extra := make([]string, 0, len(kv))
	for k, v := range kv {
		if _, ok := seen[k]; ok || strings.TrimSpace(v) == "" {
			continue
		}
		extra = append(extra, k)
	}
	sort.Strings(extra)
	for _, k := range extra {
		write(k, kv[k])
	}
	b.WriteString("]")
	return b.String()
}

func escapeSDParam(v string) string {
	v = strings.ReplaceAll(v, "\\", "\\\\")
	v = strings.ReplaceAll(v, "\"", "\\\"")
	v = strings.ReplaceAll(v, "]", "\\]")
	v = strings.ReplaceAll(v, "\n", " ")
	v = strings.ReplaceAll(v, "\r", " ")
	return v
}
