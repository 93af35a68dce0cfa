package earthengine

import "github.com/atkinslab/smap-extract/internal/domain"

// buildExpression assembles the server-side computation for one day:
// the collection's single image in [date, date+1) is reprojected, narrowed
// to the selected bands, unmasked to the fill value so every cell returns
// the same pixel count, clipped to the region, and reduced per grid cell
// with a toList reducer. bestEffort stays false so edge pixels are not
// coarsened away.
func (c *Client) buildExpression(d domain.Date) map[string]any {
	bands := make([]string, len(c.bands))
	for i, b := range c.bands {
		bands[i] = string(b)
	}

	image := invoke("ImageCollection.load", map[string]any{
		"id": c.collection,
	})
	image = invoke("ImageCollection.filterDate", map[string]any{
		"collection": image,
		"start":      d.ISO(),
		"end":        d.NextISO(),
	})
	image = invoke("Collection.first", map[string]any{
		"collection": image,
	})
	image = invoke("Image.reproject", map[string]any{
		"image": image,
		"crs":   c.crs,
		"scale": c.scaleMeters,
	})
	image = invoke("Image.select", map[string]any{
		"image":         image,
		"bandSelectors": bands,
	})
	image = invoke("Image.unmask", map[string]any{
		"image":         image,
		"value":         c.fillValue,
		"sameFootprint": true,
	})
	image = invoke("Image.clip", map[string]any{
		"image":    image,
		"geometry": invoke("Table.load", map[string]any{"id": c.regionAsset}),
	})

	return invoke("Image.reduceRegions", map[string]any{
		"image":      image,
		"collection": invoke("Table.load", map[string]any{"id": c.gridAsset}),
		"reducer":    invoke("Reducer.toList", map[string]any{}),
		"scale":      c.scaleMeters,
		"crs":        c.crs,
		"bestEffort": false,
		"maxPixels":  c.maxPixels,
	})
}

func invoke(name string, args map[string]any) map[string]any {
	return map[string]any{
		"functionName": name,
		"arguments":    args,
	}
}
