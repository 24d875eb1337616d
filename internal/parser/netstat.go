package parser

import (
	"bufio"
	"errors"
	"fmt"
	"net/netip"
	"regexp"
	"strconv"
	"strings"

	"github.com/iolloyd/netwatch/internal/models"
)

// ErrMalformedPID means a line matched the column grammar but its pid column
// did not fit an int, so the grammar assumption no longer holds.
var ErrMalformedPID = errors.New("malformed pid")

const wildcardEndpoint = "*:*"

// lineRe is the netstat -no column grammar:
// proto, local endpoint, remote endpoint, optional state, pid, anything.
var lineRe = regexp.MustCompile(fmt.Sprintf(
	`^[ \t]*(%s)[ \t]+([0-9a-zA-Z.:\[\]%%*]+)[ \t]+(\*:\*|[0-9a-zA-Z.:\[\]%%*]+)[ \t]+(?:(%s)[ \t]+)?(\d+)(?:[ \t].*)?$`,
	strings.Join(models.ProtocolTokens(), "|"),
	strings.Join(models.StateTokens(), "|"),
))

// Parse turns the text of one listing invocation into connection records, in
// input order. Lines that do not match the grammar are skipped. A pid column
// that does not fit an int fails the whole parse.
func Parse(raw string) ([]models.ConnectionRecord, error) {
	records := []models.ConnectionRecord{}

	scanner := bufio.NewScanner(strings.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), " \t\r")
		m := lineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}

		pid, err := strconv.Atoi(m[5])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w %q", lineNo, ErrMalformedPID, m[5])
		}

		record, ok := buildRecord(m[1], m[2], m[3], m[4])
		if !ok {
			continue
		}
		record.PID = pid
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan listing: %w", err)
	}

	return records, nil
}

func buildRecord(proto, local, remote, state string) (models.ConnectionRecord, bool) {
	var record models.ConnectionRecord

	p, ok := models.ParseProtocol(proto)
	if !ok {
		return record, false
	}
	record.Protocol = p

	localEP, ok := ParseEndpoint(local)
	if !ok {
		return record, false
	}
	record.Local = localEP

	if remote != wildcardEndpoint {
		remoteEP, ok := ParseEndpoint(remote)
		if !ok {
			return record, false
		}
		record.Remote = remoteEP
		record.HasRemote = true
	}

	if state != "" {
		s, ok := models.ParseState(state)
		if !ok {
			return record, false
		}
		record.State = s
	}

	return record, true
}

// ParseEndpoint splits an endpoint token on its last colon. IPv6 addresses
// may be bracketed and may carry a zone.
func ParseEndpoint(token string) (netip.AddrPort, bool) {
	idx := strings.LastIndex(token, ":")
	if idx <= 0 || idx == len(token)-1 {
		return netip.AddrPort{}, false
	}

	host := token[:idx]
	if strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]") {
		host = host[1 : len(host)-1]
	}
	if host == "*" {
		host = "0.0.0.0"
	}

	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.AddrPort{}, false
	}

	port, err := strconv.ParseUint(token[idx+1:], 10, 16)
	if err != nil {
		return netip.AddrPort{}, false
	}

	return netip.AddrPortFrom(addr, uint16(port)), true
}

// FilterLines keeps the lines of raw that contain one of keywords as a whole
// whitespace-separated field. With no keywords raw is returned unchanged.
func FilterLines(raw string, keywords []string) string {
	if len(keywords) == 0 {
		return raw
	}

	wanted := make(map[string]struct{}, len(keywords))
	for _, k := range keywords {
		wanted[k] = struct{}{}
	}

	var b strings.Builder
	scanner := bufio.NewScanner(strings.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		for _, field := range strings.Fields(line) {
			if _, ok := wanted[field]; ok {
				b.WriteString(line)
				b.WriteByte('\n')
				break
			}
		}
	}
	return b.String()
}
