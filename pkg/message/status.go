// SPDX-FileCopyrightText: 2026 The q4s-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package message

// Status codes of a Response. The 6xx codes are specific to Q4S, all others
// are borrowed from HTTP.
const (
	StatusOK                      = 200
	StatusBadRequest              = 400
	StatusForbidden               = 403
	StatusNotFound                = 404
	StatusMethodNotAllowed        = 405
	StatusNotAcceptable           = 406
	StatusRequestTimeout          = 408
	StatusRequestEntityTooLarge   = 413
	StatusRequestURITooLong       = 414
	StatusUnsupportedMediaType    = 415
	StatusRangeNotSatisfiable     = 416
	StatusServerInternalError     = 500
	StatusNotImplemented          = 501
	StatusServiceUnavailable      = 503
	StatusServerTimeout           = 504
	StatusVersionNotSupported     = 505
	StatusSessionDoesNotExist     = 600
	StatusQualityLevelNotAllowed  = 601
	StatusSessionNotAgreed        = 603
	StatusAuthorizationNotAllowed = 604
)

var reasonPhrases = map[int]string{
	StatusOK:                      "OK",
	StatusBadRequest:              "Bad Request",
	StatusForbidden:               "Forbidden",
	StatusNotFound:                "Not Found",
	StatusMethodNotAllowed:        "Method Not Allowed",
	StatusNotAcceptable:           "Not Acceptable",
	StatusRequestTimeout:          "Request Timeout",
	StatusRequestEntityTooLarge:   "Request Entity Too Large",
	StatusRequestURITooLong:       "Request-URI Too Long",
	StatusUnsupportedMediaType:    "Unsupported Media Type",
	StatusRangeNotSatisfiable:     "Requested Range Not Satisfiable",
	StatusServerInternalError:     "Server Internal Error",
	StatusNotImplemented:          "Not Implemented",
	StatusServiceUnavailable:      "Service Unavailable",
	StatusServerTimeout:           "Server Time-out",
	StatusVersionNotSupported:     "Version Not Supported",
	StatusSessionDoesNotExist:     "Session Does Not Exist",
	StatusQualityLevelNotAllowed:  "Quality Level Not Allowed",
	StatusSessionNotAgreed:        "Session Not Agreed",
	StatusAuthorizationNotAllowed: "Authorization Not Allowed",
}

// ReasonPhrase for a status code. Unknown codes result in an empty string.
func ReasonPhrase(code int) string {
	return reasonPhrases[code]
}
