package executor

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidInstance is returned when the service answers a capabilities
// or instance-list request with HTTP 400.
var ErrInvalidInstance = errors.New("invalid instance id")

// ConnectionError reports a request that never got an HTTP response.
type ConnectionError struct {
	URL       string
	ProxyHint string
	Err       error
}

func (e *ConnectionError) Error() string {
	msg := "ConnectionError: Cannot access service, check your internet connection."
	if e.ProxyHint != "" {
		msg += " Configured to use proxy: " + e.ProxyHint
	}
	return msg
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ServiceError is a non-2xx response. Message holds the text the service
// put in its exception report.
type ServiceError struct {
	URL     string
	Status  int
	Message string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf(`HTTPError: server response: "%s"`, e.Message)
}

type exceptionReport struct {
	Children []struct {
		XMLName xml.Name
		Text    string `xml:",chardata"`
	} `xml:",any"`
}

const (
	trimSet        = "\n\t "
	instanceMarker = `Config instance "instance.`
)

// ServiceMessage extracts the error text from a service error body: the
// ServiceException elements of an XML report, or the whole body when it
// is not XML.
func ServiceMessage(body []byte) string {
	var msg string
	var report exceptionReport
	if err := xml.NewDecoder(bytes.NewReader(body)).Decode(&report); err != nil {
		msg = strings.Trim(string(body), trimSet)
	} else {
		var b strings.Builder
		for _, c := range report.Children {
			if strings.Contains(c.XMLName.Local, "ServiceException") {
				b.WriteString(strings.Trim(c.Text, trimSet))
			}
		}
		msg = b.String()
	}
	msg = asciiOnly(msg)

	if strings.Contains(msg, instanceMarker) {
		if parts := strings.Split(msg, `"`); len(parts) > 1 && len(parts[1]) >= len("instance.") {
			msg = "Invalid url: " + parts[1][len("instance."):]
		}
	}
	return msg
}

func asciiOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if r > 127 {
			return -1
		}
		return r
	}, s)
}

var jsonObject = regexp.MustCompile(`({.+})`)

type jsonError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// JSONErrorMessage finds an embedded {"error":{"message":...}} object in
// text and returns the message. Single-quoted objects are accepted.
func JSONErrorMessage(text string) (string, bool) {
	m := jsonObject.FindString(text)
	if m == "" {
		return "", false
	}
	var je jsonError
	if err := json.Unmarshal([]byte(m), &je); err != nil {
		if err := json.Unmarshal([]byte(strings.ReplaceAll(m, "'", `"`)), &je); err != nil {
			return "", false
		}
	}
	if je.Error.Message == "" {
		return "", false
	}
	return je.Error.Message, true
}
