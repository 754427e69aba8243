// Package confloader loads layered configuration with koanf.
//
// Sources, lowest priority first: the caller's defaults (the target struct
// as passed in), a YAML file, DOCSNAP_* environment variables, and an
// optional override map (CLI flags).
//
// Environment names are matched against the koanf keys of the target, so
// DOCSNAP_STORAGE_DATA_DIR sets storage.data_dir. A double underscore forces
// nesting (DOCSNAP_STORAGE__DATA_DIR); unknown names nest at every
// underscore.
//
// Watcher reports writes to a watched file through fsnotify so the server
// can reload hot-swappable settings.
package confloader
