package httpproto

import "strconv"

func appendStatusLine(buf []byte, version HTTPVersion, status int, reason string) []byte {
	proto := "HTTP/1.1"
	if version == HTTPVersion10 {
		proto = "HTTP/1.0"
	}
	buf = append(buf, proto...)
	buf = append(buf, ' ')
	buf = strconv.AppendInt(buf, int64(status), 10)
	buf = append(buf, ' ')
	buf = append(buf, reason...)
	buf = append(buf, '\r', '\n')
	return buf
}

func appendHeader(buf []byte, key, value string) []byte {
	buf = append(buf, key...)
	buf = append(buf, ':', ' ')
	buf = append(buf, value...)
	buf = append(buf, '\r', '\n')
	return buf
}

func appendHeaderInt(buf []byte, key string, value int) []byte {
	buf = append(buf, key...)
	buf = append(buf, ':', ' ')
	buf = strconv.AppendInt(buf, int64(value), 10)
	buf = append(buf, '\r', '\n')
	return buf
}

func appendRequestLine(buf []byte, method, path, proto string) []byte {
	buf = append(buf, method...)
	buf = append(buf, ' ')
	buf = append(buf, path...)
	buf = append(buf, ' ')
	buf = append(buf, proto...)
	buf = append(buf, '\r', '\n')
	return buf
}
