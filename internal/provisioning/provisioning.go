// Package provisioning serves the Google Cloud provisioning script of the
// signageOS ChromeOS tool.
package provisioning

import (
	_ "embed"
	"net/http"
	"strconv"
)

// Filename is the name the script is saved under.
const Filename = "signageos-chromeos-provisioning.sh"

// MIME is the content type used for downloads.
const MIME = "text/x-shellscript"

// Script is the provisioning script text.
//
//go:embed script.sh
var Script string

// Handler serves the script as an attachment.
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", MIME+"; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="`+Filename+`"`)
		w.Header().Set("Content-Length", strconv.Itoa(len(Script)))
		if r.Method == http.MethodHead {
			return
		}
		w.Write([]byte(Script))
	})
}
