package geodata

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/annel0/citystream/internal/logging"
	"github.com/dgraph-io/badger/v3"
)

// DatasetStore кэш импортированного датасета поверх BadgerDB.
// Разбор GeoJSON крупного города занимает секунды; повторные запуски
// читают готовые записи из кэша, если исходный файл не менялся.
type DatasetStore struct {
	db      *badger.DB
	dbPath  string
	mutex   sync.RWMutex
	isReady bool
}

// sourceMeta описывает исходный файл, из которого наполнен кэш.
type sourceMeta struct {
	Path    string `json:"path"`
	Size    int64  `json:"size"`
	ModUnix int64  `json:"mod_unix"`
}

const metaKey = "meta:source"

// NewDatasetStore открывает (или создаёт) кэш датасета в указанной директории.
func NewDatasetStore(cacheDir string) (*DatasetStore, error) {
	opts := badger.DefaultOptions(cacheDir)
	opts.Logger = nil // Отключаем логирование BadgerDB

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть BadgerDB: %w", err)
	}

	return &DatasetStore{
		db:      db,
		dbPath:  cacheDir,
		isReady: true,
	}, nil
}

// Close закрывает хранилище.
func (ds *DatasetStore) Close() error {
	ds.mutex.Lock()
	defer ds.mutex.Unlock()

	if !ds.isReady {
		return nil
	}

	ds.isReady = false
	return ds.db.Close()
}

// LoadOrImport возвращает фичи датасета: из кэша, если он соответствует
// исходному файлу, иначе импортирует GeoJSON и наполняет кэш заново.
func (ds *DatasetStore) LoadOrImport(sourcePath string) (*LoadResult, error) {
	log := logging.GetGeodataLogger()

	if ds.matchesSource(sourcePath) {
		features, err := ds.loadAll()
		if err == nil {
			log.Info("📦 Датасет загружен из кэша: %d фич", len(features))
			return &LoadResult{Features: features}, nil
		}
		log.Warn("Кэш датасета нечитаем, импортируем заново: %v", err)
	}

	result, err := LoadGeoJSON(sourcePath)
	if err != nil {
		return nil, err
	}

	if err := ds.saveAll(sourcePath, result.Features); err != nil {
		// Кэш — оптимизация; неудача записи не мешает запуску
		log.Warn("Не удалось сохранить кэш датасета: %v", err)
	}

	return result, nil
}

// matchesSource проверяет, что кэш наполнен из текущей версии исходного файла.
func (ds *DatasetStore) matchesSource(sourcePath string) bool {
	info, err := os.Stat(sourcePath)
	if err != nil {
		return false
	}

	var stored sourceMeta
	err = ds.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(metaKey))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &stored)
		})
	})
	if err != nil {
		return false
	}

	return stored.Path == sourcePath &&
		stored.Size == info.Size() &&
		stored.ModUnix == info.ModTime().Unix()
}

// saveAll перезаписывает кэш фичами и метаданными источника.
func (ds *DatasetStore) saveAll(sourcePath string, features []*Feature) error {
	ds.mutex.Lock()
	defer ds.mutex.Unlock()

	if !ds.isReady {
		return fmt.Errorf("хранилище не готово")
	}

	if err := ds.db.DropAll(); err != nil {
		return fmt.Errorf("ошибка очистки кэша: %w", err)
	}

	wb := ds.db.NewWriteBatch()
	defer wb.Cancel()

	for _, f := range features {
		data, err := json.Marshal(f)
		if err != nil {
			return fmt.Errorf("ошибка сериализации фичи %d: %w", f.ID, err)
		}
		if err := wb.Set(featureKey(f.ID), data); err != nil {
			return fmt.Errorf("ошибка записи фичи %d: %w", f.ID, err)
		}
	}

	info, err := os.Stat(sourcePath)
	if err != nil {
		return err
	}
	meta, err := json.Marshal(sourceMeta{
		Path:    sourcePath,
		Size:    info.Size(),
		ModUnix: info.ModTime().Unix(),
	})
	if err != nil {
		return err
	}
	if err := wb.Set([]byte(metaKey), meta); err != nil {
		return err
	}

	return wb.Flush()
}

// loadAll читает все фичи из кэша.
func (ds *DatasetStore) loadAll() ([]*Feature, error) {
	ds.mutex.RLock()
	defer ds.mutex.RUnlock()

	if !ds.isReady {
		return nil, fmt.Errorf("хранилище не готово")
	}

	var features []*Feature
	err := ds.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte("feature:")
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var f Feature
				if err := json.Unmarshal(val, &f); err != nil {
					return err
				}
				features = append(features, &f)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return features, nil
}

// featureKey собирает ключ BadgerDB для фичи: префикс + big-endian ID,
// чтобы итерация по префиксу шла в порядке идентификаторов.
func featureKey(id uint64) []byte {
	key := make([]byte, 8+8)
	copy(key, "feature:")
	binary.BigEndian.PutUint64(key[8:], id)
	return key
}
