package model

// StagingManifest lists the files copied into the staging directory
type StagingManifest struct {
	Dir   string   // Staging directory path
	Files []string // Slash separated paths relative to the working tree root, sorted
}

// BuildPackage is a gzip tarball of the staging directory
type BuildPackage struct {
	Name string // build_<uuid>.tar.gz
	Path string // Local path of the tarball
	Size int64  // Size in bytes
}
