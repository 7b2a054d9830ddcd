// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpu

import (
	"embed"
	"encoding/binary"
	"fmt"
	"regexp"
	"strconv"

	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"
)

// Shader resource names understood by ShaderLoader.
const (
	VertexShader   = "fade_vert.wgsl"
	FragmentShader = "fade_frag.wgsl"
)

//go:embed shaders/*.wgsl
var shaderFS embed.FS

// ShaderLoader returns the WGSL source of the named shader resource.
type ShaderLoader func(name string) (string, error)

// EmbeddedShaders loads the shaders compiled into the package.
func EmbeddedShaders(name string) (string, error) {
	data, err := shaderFS.ReadFile("shaders/" + name)
	if err != nil {
		return "", fmt.Errorf("gpu: shader resource %q: %w", name, err)
	}
	return string(data), nil
}

// compileSPIRV compiles WGSL source to SPIR-V words.
func compileSPIRV(src string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(src)
	if err != nil {
		return nil, err
	}
	if len(spirvBytes)%4 != 0 {
		return nil, fmt.Errorf("SPIR-V length %d is not a multiple of 4", len(spirvBytes))
	}
	words := make([]uint32, len(spirvBytes)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(spirvBytes[i*4:])
	}
	return words, nil
}

// createShader compiles src and creates the shader module. Any failure is
// reported as a *ShaderError; nothing is left allocated.
func createShader(device hal.Device, stage ShaderStage, name, src string) (hal.ShaderModule, error) {
	spirv, err := compileSPIRV(src)
	if err != nil {
		return nil, &ShaderError{Stage: stage, Name: name, Err: err}
	}
	module, err := device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "colorfade_" + string(stage),
		Source: hal.ShaderSource{SPIRV: spirv},
	})
	if err != nil {
		return nil, &ShaderError{Stage: stage, Name: name, Err: err}
	}
	return module, nil
}

// shaderSlots are the interface locations of a shader pair, resolved by
// name from the WGSL declarations.
type shaderSlots struct {
	// attributes maps vertex input names to @location indices.
	attributes map[string]uint32

	uniformBinding uint32
	uniformSize    uint64

	// uniforms maps uniform struct members to byte offsets.
	uniforms map[string]uint32

	// textures and samplers map variable names to @binding indices.
	textures map[string]uint32
	samplers map[string]uint32
}

var (
	commentRe     = regexp.MustCompile(`//[^\n]*`)
	structRe      = regexp.MustCompile(`(?s)struct\s+(\w+)\s*\{(.*?)\}`)
	fieldRe       = regexp.MustCompile(`(?m)^\s*(?:@location\((\d+)\)\s*)?(?:@builtin\(\w+\)\s*)?(\w+)\s*:\s*([\w<>]+)`)
	vertexEntryRe = regexp.MustCompile(`@vertex\s+fn\s+\w+\s*\(\s*\w+\s*:\s*(\w+)\s*\)`)
	uniformRe     = regexp.MustCompile(`@group\(0\)\s*@binding\((\d+)\)\s*var<uniform>\s+\w+\s*:\s*(\w+)\s*;`)
	resourceRe    = regexp.MustCompile(`@group\(0\)\s*@binding\((\d+)\)\s*var\s+(\w+)\s*:\s*(texture_2d<f32>|sampler)\s*;`)
)

type structField struct {
	name     string
	typ      string
	location int // -1 when absent
}

// typeLayout returns the WGSL host-shareable alignment and size of typ.
func typeLayout(typ string) (align, size uint32, ok bool) {
	switch typ {
	case "f32", "i32", "u32":
		return 4, 4, true
	case "vec2<f32>":
		return 8, 8, true
	case "vec3<f32>":
		return 16, 12, true
	case "vec4<f32>":
		return 16, 16, true
	case "mat4x4<f32>":
		return 16, 64, true
	}
	return 0, 0, false
}

func roundUp(v, align uint32) uint32 {
	return (v + align - 1) / align * align
}

func parseStructs(src string) map[string][]structField {
	structs := make(map[string][]structField)
	for _, m := range structRe.FindAllStringSubmatch(src, -1) {
		var fields []structField
		for _, f := range fieldRe.FindAllStringSubmatch(m[2], -1) {
			loc := -1
			if f[1] != "" {
				loc, _ = strconv.Atoi(f[1])
			}
			fields = append(fields, structField{name: f[2], typ: f[3], location: loc})
		}
		structs[m[1]] = fields
	}
	return structs
}

// reflectShaders resolves the interface of a vertex and fragment shader.
// Declarations from both sources are merged; a uniform block declared in
// both must agree on binding and type.
func reflectShaders(vertSrc, fragSrc string) (*shaderSlots, error) {
	slots := &shaderSlots{
		attributes: make(map[string]uint32),
		uniforms:   make(map[string]uint32),
		textures:   make(map[string]uint32),
		samplers:   make(map[string]uint32),
	}

	uniformType := ""
	var uniformFields []structField
	for _, src := range []string{vertSrc, fragSrc} {
		src = commentRe.ReplaceAllString(src, "")
		structs := parseStructs(src)

		if m := vertexEntryRe.FindStringSubmatch(src); m != nil {
			for _, f := range structs[m[1]] {
				if f.location >= 0 {
					slots.attributes[f.name] = uint32(f.location) //nolint:gosec // parsed from digits
				}
			}
		}

		if m := uniformRe.FindStringSubmatch(src); m != nil {
			binding, _ := strconv.ParseUint(m[1], 10, 32)
			if uniformType != "" && (uniformType != m[2] || slots.uniformBinding != uint32(binding)) {
				return nil, fmt.Errorf("gpu: uniform block mismatch: %s@%d and %s@%s",
					uniformType, slots.uniformBinding, m[2], m[1])
			}
			fields, ok := structs[m[2]]
			if !ok {
				return nil, fmt.Errorf("%w: uniform struct %s", ErrUnresolvedSlot, m[2])
			}
			uniformType = m[2]
			uniformFields = fields
			slots.uniformBinding = uint32(binding)
		}

		for _, m := range resourceRe.FindAllStringSubmatch(src, -1) {
			binding, _ := strconv.ParseUint(m[1], 10, 32)
			if m[3] == "sampler" {
				slots.samplers[m[2]] = uint32(binding)
			} else {
				slots.textures[m[2]] = uint32(binding)
			}
		}
	}

	var offset, maxAlign uint32 = 0, 1
	for _, f := range uniformFields {
		align, size, ok := typeLayout(f.typ)
		if !ok {
			return nil, fmt.Errorf("gpu: uniform %s has unsupported type %s", f.name, f.typ)
		}
		offset = roundUp(offset, align)
		slots.uniforms[f.name] = offset
		offset += size
		maxAlign = max(maxAlign, align)
	}
	slots.uniformSize = uint64(roundUp(offset, maxAlign))
	return slots, nil
}

// require checks that every named slot was resolved.
func (s *shaderSlots) require(attributes, uniforms []string, texture, sampler string) error {
	for _, name := range attributes {
		if _, ok := s.attributes[name]; !ok {
			return fmt.Errorf("%w: attribute %q", ErrUnresolvedSlot, name)
		}
	}
	for _, name := range uniforms {
		if _, ok := s.uniforms[name]; !ok {
			return fmt.Errorf("%w: uniform %q", ErrUnresolvedSlot, name)
		}
	}
	if _, ok := s.textures[texture]; !ok {
		return fmt.Errorf("%w: texture %q", ErrUnresolvedSlot, texture)
	}
	if _, ok := s.samplers[sampler]; !ok {
		return fmt.Errorf("%w: sampler %q", ErrUnresolvedSlot, sampler)
	}
	return nil
}
