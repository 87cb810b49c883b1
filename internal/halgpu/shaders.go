//go:build !nogpu

package halgpu

import (
	"fmt"
	"strings"

	"github.com/gogpu/imp/gpucore"
	"github.com/gogpu/imp/internal/kernel"
)

// kernelSpec describes the bindings of one WGSL kernel.
//
// Textures are storage buffers of packed texels (r | g<<8 | b<<16 | a<<24)
// bound at 0..textures-1, gpucore buffers follow, and the last binding holds
// one vec4<u32> {width, height, depth, 0} per bound texture.
type kernelSpec struct {
	textures  int
	buffers   int
	workgroup gpucore.Size
	body      string
}

func (k kernelSpec) bindings() int { return k.textures + k.buffers + 1 }

func (k kernelSpec) threads() int { return k.workgroup.Count() }

// source assembles the binding declarations, the shared helpers and the
// kernel body.
func (k kernelSpec) source() string {
	var sb strings.Builder
	for i := range k.textures {
		fmt.Fprintf(&sb, "@group(0) @binding(%d) var<storage, read_write> t%d: array<u32>;\n", i, i)
	}
	for i := range k.buffers {
		fmt.Fprintf(&sb, "@group(0) @binding(%d) var<storage, read_write> b%d: array<u32>;\n", k.textures+i, i)
	}
	fmt.Fprintf(&sb, "@group(0) @binding(%d) var<storage, read> dims: array<vec4<u32>>;\n", k.textures+k.buffers)
	sb.WriteString(helpersWGSL)
	fmt.Fprintf(&sb, "@compute @workgroup_size(%d, %d, %d)\n", k.workgroup.Width, k.workgroup.Height, k.workgroup.Depth)
	sb.WriteString(k.body)
	return sb.String()
}

var (
	imageGroup     = gpucore.Size{Width: 16, Height: 16, Depth: 1}
	reductionGroup = gpucore.Size{Width: 1, Height: 1, Depth: 1}
)

var kernels = map[string]kernelSpec{
	kernel.Passthrough:      {textures: 2, workgroup: imageGroup, body: passthroughWGSL},
	kernel.Transform:        {textures: 2, buffers: 1, workgroup: imageGroup, body: transformWGSL},
	kernel.LUT1D:            {textures: 3, buffers: 1, workgroup: imageGroup, body: lut1DWGSL},
	kernel.LUT3D:            {textures: 3, buffers: 1, workgroup: imageGroup, body: lut3DWGSL},
	kernel.HistogramPartial: {textures: 1, buffers: 2, workgroup: reductionGroup, body: histogramWGSL},
	kernel.CubePartial:      {textures: 1, buffers: 2, workgroup: reductionGroup, body: cubeWGSL},
}

const helpersWGSL = `
fn unpack(v: u32) -> vec4<f32> {
    return vec4<f32>(f32(v & 0xffu), f32((v >> 8u) & 0xffu), f32((v >> 16u) & 0xffu), f32(v >> 24u));
}

fn pack(c: vec4<f32>) -> u32 {
    let q = vec4<u32>(clamp(round(c), vec4<f32>(0.0), vec4<f32>(255.0)));
    return q.x | (q.y << 8u) | (q.z << 16u) | (q.w << 24u);
}

fn in_region(u: f32, v: f32, l: f32, t: f32, r: f32, b: f32) -> bool {
    return u >= l && u < 1.0 - r && v >= t && v < 1.0 - b;
}

fn sample_grid(w: u32, h: u32, scale: f32) -> vec2<u32> {
    var s = scale;
    if (s <= 0.0 || s > 1.0) {
        s = 1.0;
    }
    return vec2<u32>(max(u32(f32(w) * s), 1u), max(u32(f32(h) * s), 1u));
}
`

const passthroughWGSL = `
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    let i = dims[0];
    let o = dims[1];
    if (id.x >= o.x || id.y >= o.y) {
        return;
    }
    let sx = id.x * i.x / o.x;
    let sy = id.y * i.y / o.y;
    t1[id.y * o.x + id.x] = t0[sy * i.x + sx];
}
`

const transformWGSL = `
fn pf(i: u32) -> f32 {
    return bitcast<f32>(b0[i]);
}

fn fetch(x: i32, y: i32, w: u32, h: u32) -> vec4<f32> {
    let cx = u32(clamp(x, 0, i32(w) - 1));
    let cy = u32(clamp(y, 0, i32(h) - 1));
    return unpack(t0[cy * w + cx]);
}

fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    let i = dims[0];
    let o = dims[1];
    if (id.x >= o.x || id.y >= o.y) {
        return;
    }
    let iw = f32(i.x);
    let ih = f32(i.y);
    let nx = 2.0 * (f32(id.x) + 0.5) / f32(o.x) - 1.0;
    let ny = 1.0 - 2.0 * (f32(id.y) + 0.5) / f32(o.y);
    let sx = pf(0u) * nx + pf(1u) * ny + pf(2u);
    let sy = pf(4u) * nx + pf(5u) * ny + pf(6u);
    let sz = pf(8u) * nx + pf(9u) * ny + pf(10u);
    let bg = vec4<f32>(pf(12u), pf(13u), pf(14u), pf(15u)) * 255.0;
    let idx = id.y * o.x + id.x;
    if (abs(sz) < 1e-12) {
        t1[idx] = pack(bg);
        return;
    }
    let u = (sx / sz + 1.0) / 2.0 * iw;
    let v = (1.0 - sy / sz) / 2.0 * ih;
    if (u < 0.0 || v < 0.0 || u >= iw || v >= ih) {
        t1[idx] = pack(bg);
        return;
    }
    if (b0[16] == 0u) {
        t1[idx] = t0[u32(v) * i.x + u32(u)];
        return;
    }
    let fx = u - 0.5;
    let fy = v - 0.5;
    let x0 = i32(floor(fx));
    let y0 = i32(floor(fy));
    let ax = fx - floor(fx);
    let ay = fy - floor(fy);
    let top = mix(fetch(x0, y0, i.x, i.y), fetch(x0 + 1, y0, i.x, i.y), ax);
    let bot = mix(fetch(x0, y0 + 1, i.x, i.y), fetch(x0 + 1, y0 + 1, i.x, i.y), ax);
    t1[idx] = pack(mix(top, bot, ay));
}
`

const lut1DWGSL = `
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    let i = dims[0];
    let o = dims[1];
    if (id.x >= o.x || id.y >= o.y || id.x >= i.x || id.y >= i.y) {
        return;
    }
    let n = min(b0[0], dims[2].x);
    let k = bitcast<f32>(b0[1]);
    let c = unpack(t0[id.y * i.x + id.x]);
    let pos = c.rgb / 255.0 * f32(n - 1u);
    let i0 = vec3<u32>(floor(pos));
    let i1 = min(i0 + vec3<u32>(1u), vec3<u32>(n - 1u));
    let f = pos - floor(pos);
    let a = vec3<f32>(unpack(t2[i0.x]).x, unpack(t2[i0.y]).y, unpack(t2[i0.z]).z);
    let b = vec3<f32>(unpack(t2[i1.x]).x, unpack(t2[i1.y]).y, unpack(t2[i1.z]).z);
    let mapped = a + (b - a) * f;
    t1[id.y * o.x + id.x] = pack(vec4<f32>(mix(c.rgb, mapped, k), c.a));
}
`

const lut3DWGSL = `
fn at(r: u32, g: u32, b: u32, n: u32) -> vec3<f32> {
    return unpack(t2[(b * n + g) * n + r]).rgb;
}

fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    let i = dims[0];
    let o = dims[1];
    if (id.x >= o.x || id.y >= o.y || id.x >= i.x || id.y >= i.y) {
        return;
    }
    let n = b0[0];
    let k = bitcast<f32>(b0[1]);
    let c = unpack(t0[id.y * i.x + id.x]);
    let pos = c.rgb / 255.0 * f32(n - 1u);
    let i0 = vec3<u32>(floor(pos));
    let i1 = min(i0 + vec3<u32>(1u), vec3<u32>(n - 1u));
    let f = pos - floor(pos);
    let x0 = mix(at(i0.x, i0.y, i0.z, n), at(i1.x, i0.y, i0.z, n), f.x);
    let x1 = mix(at(i0.x, i1.y, i0.z, n), at(i1.x, i1.y, i0.z, n), f.x);
    let x2 = mix(at(i0.x, i0.y, i1.z, n), at(i1.x, i0.y, i1.z, n), f.x);
    let x3 = mix(at(i0.x, i1.y, i1.z, n), at(i1.x, i1.y, i1.z, n), f.x);
    let mapped = mix(mix(x0, x1, f.y), mix(x2, x3, f.y), f.z);
    t1[id.y * o.x + id.x] = pack(vec4<f32>(mix(c.rgb, mapped, k), c.a));
}
`

// The reductions run one invocation per accumulator; each scans one column
// stripe of the sample grid into its own slice of b0. b1 holds the params.
const histogramWGSL = `
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    let channels = b1[0];
    let acc = b1[1];
    let a = id.x;
    if (a >= acc) {
        return;
    }
    let base = a * channels * 256u;
    for (var j = 0u; j < channels * 256u; j = j + 1u) {
        b0[base + j] = 0u;
    }
    let w = dims[0].x;
    let h = dims[0].y;
    let grid = sample_grid(w, h, bitcast<f32>(b1[2]));
    let x0 = a * grid.x / acc;
    let x1 = (a + 1u) * grid.x / acc;
    let l = bitcast<f32>(b1[4]);
    let t = bitcast<f32>(b1[5]);
    let r = bitcast<f32>(b1[6]);
    let b = bitcast<f32>(b1[7]);
    for (var y = 0u; y < grid.y; y = y + 1u) {
        let v = (f32(y) + 0.5) / f32(grid.y);
        for (var x = x0; x < x1; x = x + 1u) {
            let u = (f32(x) + 0.5) / f32(grid.x);
            if (!in_region(u, v, l, t, r, b)) {
                continue;
            }
            let tx = min(x * w / grid.x, w - 1u);
            let ty = min(y * h / grid.y, h - 1u);
            let p = t0[ty * w + tx];
            let c = vec4<u32>(p & 0xffu, (p >> 8u) & 0xffu, (p >> 16u) & 0xffu, p >> 24u);
            b0[base + c.x] = b0[base + c.x] + 1u;
            if (channels > 1u) {
                b0[base + 256u + c.y] = b0[base + 256u + c.y] + 1u;
            }
            if (channels > 2u) {
                b0[base + 512u + c.z] = b0[base + 512u + c.z] + 1u;
            }
            if (channels > 3u) {
                let luma = (299u * c.x + 587u * c.y + 114u * c.z) * c.w / 255000u;
                b0[base + 768u + luma] = b0[base + 768u + luma] + 1u;
            }
        }
    }
}
`

const cubeWGSL = `
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    let acc = b1[0];
    let a = id.x;
    if (a >= acc) {
        return;
    }
    let base = a * 32768u * 4u;
    for (var j = 0u; j < 32768u * 4u; j = j + 1u) {
        b0[base + j] = 0u;
    }
    let w = dims[0].x;
    let h = dims[0].y;
    let grid = sample_grid(w, h, bitcast<f32>(b1[2]));
    let x0 = a * grid.x / acc;
    let x1 = (a + 1u) * grid.x / acc;
    let l = bitcast<f32>(b1[4]);
    let t = bitcast<f32>(b1[5]);
    let r = bitcast<f32>(b1[6]);
    let b = bitcast<f32>(b1[7]);
    let shadows = bitcast<f32>(b1[8]);
    let highlights = bitcast<f32>(b1[9]);
    let lo = shadows * 255.0;
    let hi = (1.0 - highlights) * 255.0;
    for (var y = 0u; y < grid.y; y = y + 1u) {
        let v = (f32(y) + 0.5) / f32(grid.y);
        for (var x = x0; x < x1; x = x + 1u) {
            let u = (f32(x) + 0.5) / f32(grid.x);
            if (!in_region(u, v, l, t, r, b)) {
                continue;
            }
            let tx = min(x * w / grid.x, w - 1u);
            let ty = min(y * h / grid.y, h - 1u);
            let p = t0[ty * w + tx];
            let c = vec3<u32>(p & 0xffu, (p >> 8u) & 0xffu, (p >> 16u) & 0xffu);
            let cf = vec3<f32>(c);
            if (shadows > 0.0 && all(cf < vec3<f32>(lo))) {
                continue;
            }
            if (highlights > 0.0 && all(cf > vec3<f32>(hi))) {
                continue;
            }
            let cell = base + ((c.x >> 3u) + (c.y >> 3u) * 32u + (c.z >> 3u) * 1024u) * 4u;
            b0[cell] = b0[cell] + 1u;
            b0[cell + 1u] = b0[cell + 1u] + c.x;
            b0[cell + 2u] = b0[cell + 2u] + c.y;
            b0[cell + 3u] = b0[cell + 3u] + c.z;
        }
    }
}
`
