package assets

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/fromscratch/engine/assets/loaders"
	"github.com/spaghettifunk/fromscratch/engine/core"
	"github.com/spaghettifunk/fromscratch/engine/renderer/metadata"
)

type AssetInfo struct {
	// Path relative to the asset root, slash separated.
	Path       string
	Type       metadata.ResourceType
	LastLoaded time.Time
	Modified   time.Time
}

// AssetManager indexes the files under one root directory and loads them
// through the loader registered for their type. With watching enabled the
// index follows the directory and changes are reported to the OnChange hook.
type AssetManager struct {
	root    string
	assets  map[string]AssetInfo
	loaders map[metadata.ResourceType]Loader

	mutex sync.RWMutex

	watch    bool
	done     chan struct{}
	wg       sync.WaitGroup
	fsnotify *fsnotify.Watcher
	isClosed bool
	onChange func(AssetInfo)
}

func NewAssetManager(watch bool) (*AssetManager, error) {
	am := &AssetManager{
		assets:  make(map[string]AssetInfo),
		loaders: make(map[metadata.ResourceType]Loader),
		watch:   watch,
		done:    make(chan struct{}),
	}
	if watch {
		fsWatch, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, err
		}
		am.fsnotify = fsWatch
	}

	// Register loaders
	am.registerLoader(metadata.ResourceTypeBinary, &loaders.BinaryLoader{})
	am.registerLoader(metadata.ResourceTypeShader, &loaders.ShaderLoader{})

	return am, nil
}

// OnChange sets the hook called from the watcher goroutine whenever an indexed
// file is created or written. Set it before Initialize.
func (am *AssetManager) OnChange(fn func(AssetInfo)) {
	am.onChange = fn
}

func (am *AssetManager) Initialize(assetsDir string) error {
	if am.isClosed {
		return errors.New("asset manager already shut down")
	}
	root, err := filepath.Abs(assetsDir)
	if err != nil {
		return err
	}
	if s, err := os.Stat(root); err != nil {
		return err
	} else if !s.IsDir() {
		return fmt.Errorf("asset root %s is not a directory", root)
	}
	am.root = root

	if err := am.watchRecursive(root, false); err != nil {
		return err
	}

	if am.watch {
		am.wg.Add(1)
		go am.start()
	}
	core.LogInfo("asset manager indexed %d files under %s", am.Len(), root)
	return nil
}

func (am *AssetManager) Shutdown() error {
	if am.isClosed {
		return nil
	}
	am.isClosed = true
	close(am.done)
	am.wg.Wait()
	if am.fsnotify != nil {
		return am.fsnotify.Close()
	}
	return nil
}

// Register loaders for each asset type
func (am *AssetManager) registerLoader(assetType metadata.ResourceType, loader Loader) {
	am.loaders[assetType] = loader
}

func (am *AssetManager) Len() int {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	return len(am.assets)
}

func (am *AssetManager) Lookup(name string) (AssetInfo, bool) {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	asset, ok := am.assets[filepath.ToSlash(name)]
	return asset, ok
}

// LoadAsset loads an indexed asset, name being its path relative to the root.
func (am *AssetManager) LoadAsset(name string) (*metadata.Resource, error) {
	key := filepath.ToSlash(name)

	am.mutex.Lock()
	asset, exists := am.assets[key]
	if exists {
		asset.LastLoaded = time.Now()
		am.assets[key] = asset
	}
	am.mutex.Unlock()
	if !exists {
		return nil, fmt.Errorf("asset not found: %s", name)
	}

	loader, loaderExists := am.loaders[asset.Type]
	if !loaderExists {
		return nil, fmt.Errorf("no loader registered for asset type: %s", asset.Type)
	}

	res, err := loader.Load(filepath.Join(am.root, filepath.FromSlash(key)))
	if err != nil {
		core.LogError("failed to load asset %s: %s", name, err)
		return nil, err
	}
	return res, nil
}

// LoadShader returns the SPIR-V words of a compiled shader as raw bytes.
func (am *AssetManager) LoadShader(name string) ([]byte, error) {
	asset, ok := am.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("shader not found: %s", name)
	}
	if asset.Type != metadata.ResourceTypeShader {
		return nil, fmt.Errorf("asset %s is a %s, not a shader", name, asset.Type)
	}
	res, err := am.LoadAsset(name)
	if err != nil {
		return nil, err
	}
	core.LogDebug("loaded shader %s (%d bytes)", name, res.DataSize)
	return res.Data, nil
}

func (am *AssetManager) start() {
	defer am.wg.Done()
	for {
		select {
		case e, ok := <-am.fsnotify.Events:
			if !ok {
				return
			}
			s, err := os.Stat(e.Name)
			if err == nil && s != nil && s.IsDir() {
				if e.Op&fsnotify.Create != 0 {
					if err := am.watchRecursive(e.Name, false); err != nil {
						core.LogWarn("failed to watch %s: %s", e.Name, err)
					}
				}
				continue
			}
			// Handle create or modify events
			if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				if info, ok := am.handleFileEvent(e.Name); ok && am.onChange != nil {
					am.onChange(info)
				}
			}
			if e.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				am.removeAsset(e.Name)
			}

		case err, ok := <-am.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError(err.Error())

		case <-am.done:
			return
		}
	}
}

// watchRecursive indexes every file under path and, when watching, adds each
// directory to the watch list.
func (am *AssetManager) watchRecursive(path string, unWatch bool) error {
	return filepath.WalkDir(path, func(walkPath string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if am.fsnotify == nil {
				return nil
			}
			if unWatch {
				return am.fsnotify.Remove(walkPath)
			}
			return am.fsnotify.Add(walkPath)
		}
		am.handleFileEvent(walkPath)
		return nil
	})
}

// Handle the creation or modification of a file
func (am *AssetManager) handleFileEvent(path string) (AssetInfo, bool) {
	assetType := determineAssetType(path)
	if assetType == metadata.ResourceTypeNone {
		return AssetInfo{}, false
	}
	key, err := am.key(path)
	if err != nil {
		return AssetInfo{}, false
	}

	am.mutex.Lock()
	defer am.mutex.Unlock()
	info := am.assets[key]
	info.Path = key
	info.Type = assetType
	info.Modified = time.Now()
	am.assets[key] = info
	return info, true
}

// Remove the asset from the index if it was deleted
func (am *AssetManager) removeAsset(path string) {
	key, err := am.key(path)
	if err != nil {
		return
	}
	am.mutex.Lock()
	defer am.mutex.Unlock()
	delete(am.assets, key)
}

func (am *AssetManager) key(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(am.root, abs)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

func determineAssetType(path string) metadata.ResourceType {
	switch filepath.Ext(path) {
	case ".spv":
		return metadata.ResourceTypeShader
	case ".bin":
		return metadata.ResourceTypeBinary
	default:
		return metadata.ResourceTypeNone
	}
}
