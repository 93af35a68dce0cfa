// Package domain models the SMAP soil-moisture extraction data.
//
// # Data Source
//
// Rasters come from the NASA SMAP L4 Global Soil Moisture product
// (catalog ID "NASA/SMAP/SPL4SMGP/008"), served through Google Earth Engine.
// The product publishes one image per day; the two channels of interest are
// "sm_surface" (0-5 cm volumetric soil moisture) and "sm_rootzone"
// (0-100 cm). The region of interest is partitioned into a grid of cells
// (an Earth Engine table asset) so the server-side reduction stays within
// Earth Engine's per-request memory limits: each cell's pixels are collapsed
// into a flat list, and the lists are concatenated in grid order.
//
// # Sentinel Convention
//
// Before reduction the image is unmasked with -9999 so every cell returns
// the same number of pixels regardless of masking. The sentinel is replaced
// with NaN before anything is written to disk; downstream tree-based models
// treat NaN as missing, whereas -9999 would be read as a real measurement.
// See [ReplaceSentinel].
//
// # Date Enumeration
//
// The extraction range is configured as independent year, month, and day
// bounds and enumerated as every (year, month, day) triple, so nonexistent
// days such as February 30 are produced and must be skipped by the caller.
// [Date.Validate] reports those with [ErrInvalidDate]. Enumerating blindly
// keeps the range definition trivial and doubles as a sanity check that the
// skip path works.
package domain
