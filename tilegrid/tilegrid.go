// Package tilegrid computes HEVC tile geometry: how many CTBs each tile
// spans, its pixel rectangle, and which tile a given slice_segment_address
// falls into. Naming convention: tile "rows" iterate the picture's
// CTB-height dimension and "columns" the CTB-width dimension, and Locate,
// TileIndex, and TileRect all share it. Callers must not mix in any other
// labelling when mapping tiles to output PIDs.
package tilegrid

import "github.com/zsiec/hevcsplit/hevc"

// Grid is the realized tile geometry for one SPS/PPS pairing.
type Grid struct {
	PicWidthInCtbs  uint32
	PicHeightInCtbs uint32
	MaxCUWidth      uint32
	MaxCUHeight     uint32
	PicWidth        uint32
	PicHeight       uint32

	NumTileRows    uint32 // PPS num_tile_rows_minus1+1
	NumTileColumns uint32 // PPS num_tile_columns_minus1+1
	UniformSpacing bool

	rowHeightCtbs []uint32 // length NumTileRows, explicit-spacing only
	colWidthCtbs  []uint32 // length NumTileColumns, explicit-spacing only
}

// New derives a Grid from a picture's active SPS and PPS. If the PPS does
// not enable tiles, the returned Grid has NumTileRows == NumTileColumns == 1
// (the whole picture is "tile" (0,0)).
func New(sps *hevc.SPS, pps *hevc.PPS) *Grid {
	g := &Grid{
		PicWidthInCtbs:  sps.PicWidthInCtbs(),
		PicHeightInCtbs: sps.PicHeightInCtbs(),
		MaxCUWidth:      sps.MaxCUWidth,
		MaxCUHeight:     sps.MaxCUHeight,
		PicWidth:        sps.Width,
		PicHeight:       sps.Height,
		NumTileRows:     1,
		NumTileColumns:  1,
		UniformSpacing:  true,
	}
	if !pps.TilesEnabled {
		return g
	}
	g.NumTileRows = pps.NumTileRowsMinus1 + 1
	g.NumTileColumns = pps.NumTileColumnsMinus1 + 1
	g.UniformSpacing = pps.UniformSpacing
	if !pps.UniformSpacing {
		g.rowHeightCtbs = make([]uint32, g.NumTileRows)
		for i := uint32(0); i+1 < g.NumTileRows; i++ {
			g.rowHeightCtbs[i] = pps.RowHeightMinus1[i] + 1
		}
		g.colWidthCtbs = make([]uint32, g.NumTileColumns)
		for i := uint32(0); i+1 < g.NumTileColumns; i++ {
			g.colWidthCtbs[i] = pps.ColumnWidthMinus1[i] + 1
		}
	}
	return g
}

// rowHeight returns tile row index's height in CTBs.
func (g *Grid) rowHeight(index uint32) uint32 {
	if g.UniformSpacing {
		return (index+1)*g.PicHeightInCtbs/g.NumTileRows - index*g.PicHeightInCtbs/g.NumTileRows
	}
	if index+1 < g.NumTileRows {
		return g.rowHeightCtbs[index]
	}
	var used uint32
	for i := uint32(0); i+1 < g.NumTileRows; i++ {
		used += g.rowHeightCtbs[i]
	}
	return g.PicHeightInCtbs - used
}

// colWidth returns tile column index's width in CTBs.
func (g *Grid) colWidth(index uint32) uint32 {
	if g.UniformSpacing {
		return (index+1)*g.PicWidthInCtbs/g.NumTileColumns - index*g.PicWidthInCtbs/g.NumTileColumns
	}
	if index+1 < g.NumTileColumns {
		return g.colWidthCtbs[index]
	}
	var used uint32
	for i := uint32(0); i+1 < g.NumTileColumns; i++ {
		used += g.colWidthCtbs[i]
	}
	return g.PicWidthInCtbs - used
}

// Locate maps a source picture's slice_segment_address to the (row, col)
// tile it belongs to. The address is decomposed as row = address /
// PicWidthInCtbs, col = address % PicWidthInCtbs, consistent with HEVC's
// raster CTB addressing; row/col are then bucketed against the accumulated
// tile row heights / column widths.
func (g *Grid) Locate(address uint32) (row, col uint32) {
	ctbRow := address / g.PicWidthInCtbs
	ctbCol := address % g.PicWidthInCtbs

	var acc uint32
	for i := uint32(0); i < g.NumTileRows; i++ {
		h := g.rowHeight(i)
		if ctbRow < acc+h {
			row = i
			break
		}
		acc += h
	}
	acc = 0
	for i := uint32(0); i < g.NumTileColumns; i++ {
		w := g.colWidth(i)
		if ctbCol < acc+w {
			col = i
			break
		}
		acc += w
	}
	return row, col
}

// TileIndex returns a PID routing index for tile (row, col), row-major
// across NumTileColumns.
func (g *Grid) TileIndex(row, col uint32) uint32 {
	return row*g.NumTileColumns + col
}

// TileRect returns a tile's pixel rectangle: origin (x, y) and size
// (width, height), clipped against the picture's actual pixel dimensions
// (the last row/column of tiles may not fill a whole CTB).
func (g *Grid) TileRect(row, col uint32) (x, y, width, height uint32) {
	var tbRow uint32
	for i := uint32(0); i < row; i++ {
		tbRow += g.rowHeight(i)
	}
	var tbCol uint32
	for i := uint32(0); i < col; i++ {
		tbCol += g.colWidth(i)
	}

	width = g.colWidth(col) * g.MaxCUWidth
	height = g.rowHeight(row) * g.MaxCUHeight
	x = tbCol * g.MaxCUWidth
	y = tbRow * g.MaxCUHeight

	if x+width > g.PicWidth {
		width = g.PicWidth - x
	}
	if y+height > g.PicHeight {
		height = g.PicHeight - y
	}
	return x, y, width, height
}

// NumTiles returns the total tile count.
func (g *Grid) NumTiles() uint32 { return g.NumTileRows * g.NumTileColumns }

// TileCTBSize returns tile (row, col)'s span in CTBs, the picture
// dimensions rewrite.SliceHeader needs to size a rewritten
// slice_segment_address for that tile's own sub-bitstream.
func (g *Grid) TileCTBSize(row, col uint32) (widthCTB, heightCTB uint32) {
	return g.colWidth(col), g.rowHeight(row)
}
