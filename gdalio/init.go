// Package gdalio reads and writes the per date GeoTIFF bands through GDAL.
package gdalio

// #include "gdal.h"
// #include "gdal_frmts.h"
// #cgo pkg-config: gdal
import "C"

import (
	"os"
	"path/filepath"
	"sync"
)

var initOnce sync.Once

// Init sets the GDAL environment defaults and registers the drivers. It is
// safe to call more than once.
func Init() {
	initOnce.Do(func() {
		setDefaultEnv("GDAL_PAM_ENABLED", "NO")
		setDefaultEnv("GDAL_DISABLE_READDIR_ON_OPEN", "EMPTY_DIR")
		setDefaultEnv("GDAL_MAX_DATASET_POOL_SIZE", "10")
		setDefaultEnv("GDAL_TIFF_INTERNAL_MASK", "YES")

		if exe, err := os.Executable(); err == nil {
			setDefaultEnv("GDAL_DRIVER_PATH", filepath.Dir(exe))
		}
		registerDrivers()
	})
}

func setDefaultEnv(name, value string) {
	if _, ok := os.LookupEnv(name); !ok {
		os.Setenv(name, value)
	}
}

// registerDrivers puts GTiff at the front of the driver list, drivers are
// probed in order when a file is opened.
func registerDrivers() {
	haveGTiff := false
	C.GDALAllRegister()
	for i := 0; i < int(C.GDALGetDriverCount()); i++ {
		if C.GoString(C.GDALGetDriverShortName(C.GDALGetDriver(C.int(i)))) == "GTiff" {
			haveGTiff = true
		}
	}
	if !haveGTiff {
		return
	}

	for C.GDALGetDriverCount() > 0 {
		C.GDALDeregisterDriver(C.GDALGetDriver(0))
	}
	C.GDALRegister_GTiff()
	C.GDALAllRegister()
}
