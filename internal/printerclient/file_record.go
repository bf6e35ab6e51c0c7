package printerclient

// StorageMedium identifies which storage device a listed file lives on.
type StorageMedium string

const (
	StorageLocal  StorageMedium = "local"
	StorageUdisk  StorageMedium = "udisk"
	StorageSDCard StorageMedium = "sdcard"
)

// PrintFileRecord describes one file the printer reports in a ListFiles
// response.
type PrintFileRecord struct {
	Filename       string
	StorageMedium  StorageMedium
	Size           int64
	MD5            string
	ThumbnailBytes []byte // populated inline when the printer embeds it; see decodeInlineThumbnail
	TotalLayers    int
}

func parseStorageMedium(v string) StorageMedium {
	switch StorageMedium(v) {
	case StorageLocal, StorageUdisk, StorageSDCard:
		return StorageMedium(v)
	default:
		return StorageLocal
	}
}

func recordsFromResult(result map[string]any) []PrintFileRecord {
	raw, ok := result["fileList"].([]any)
	if !ok {
		raw, _ = result["files"].([]any)
	}
	records := make([]PrintFileRecord, 0, len(raw))
	for _, entry := range raw {
		m, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		records = append(records, recordFromMap(m))
	}
	return records
}

func recordFromMap(m map[string]any) PrintFileRecord {
	rec := PrintFileRecord{
		Filename:      stringField(m, "name", "filename"),
		StorageMedium: parseStorageMedium(stringField(m, "storageMedium", "storage")),
		MD5:           stringField(m, "md5", "MD5"),
	}
	if v, ok := numberField(m, "size", "Size"); ok {
		rec.Size = int64(v)
	}
	if v, ok := numberField(m, "total_layer", "TotalLayers"); ok {
		rec.TotalLayers = int(v)
	}
	if thumb, ok := decodeInlineThumbnail(m); ok {
		rec.ThumbnailBytes = thumb
	}
	return rec
}

func stringField(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func numberField(m map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		if v, ok := m[k].(float64); ok {
			return v, true
		}
	}
	return 0, false
}
