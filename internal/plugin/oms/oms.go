// Package oms ships the Observations, Measurements and Samples model as an
// embedded model definition. It defines its own Observation and
// ObservedProperty types and can not be enabled together with the core model.
package oms

import (
	"embed"

	"github.com/pbaumard/FROST-Server/internal/plugin/modeldef"
)

// Name is the plugin name used for enable switches.
const Name = "omsModel"

// Conformance is the conformance class of the model.
const Conformance = "http://www.opengis.net/spec/oms/3/req/datamodel"

const definitionPath = "model/oms.yaml"

//go:embed model/oms.yaml
var definitions embed.FS

// New creates the plugin. It is disabled unless switched on.
func New() *modeldef.Plugin {
	return modeldef.NewFS(Name, definitions, false, definitionPath)
}
