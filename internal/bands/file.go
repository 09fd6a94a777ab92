package bands

import (
	"fmt"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/betbot/keeper/internal/ports"
)

// FileSource 从 YAML 文件读取 band 配置，每次调用 Bands() 都重新读取，
// 修改文件后下一个 tick 即生效，无需重启。
//
// 文件格式：
//
//	buy_bands:
//	  - min_margin: 0.005
//	    avg_margin: 0.01
//	    max_margin: 0.02
//	    min_amount: 20
//	    avg_amount: 30
//	    max_amount: 40
//	    dust_cutoff: 0.1
//	sell_bands: [...]
type FileSource struct {
	path string
	log  *logrus.Entry

	mu      sync.Mutex
	lastMod int64
}

var _ ports.BandsSource = (*FileSource)(nil)

// NewFileSource 创建文件 band 源
func NewFileSource(path string, log *logrus.Entry) *FileSource {
	if log == nil {
		log = logrus.WithField("component", "bands")
	}
	return &FileSource{path: path, log: log}
}

// Bands 读取并校验当前文件内容，返回不可变快照
func (s *FileSource) Bands() (ports.Bands, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("读取 band 文件失败: %w", err)
	}
	b, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("band 文件 %s: %w", s.path, err)
	}

	if info, statErr := os.Stat(s.path); statErr == nil {
		s.mu.Lock()
		mod := info.ModTime().UnixNano()
		if s.lastMod != 0 && mod != s.lastMod {
			s.log.Infof("📄 band 配置已更新: buy=%d sell=%d", len(b.BuyBands), len(b.SellBands))
		}
		s.lastMod = mod
		s.mu.Unlock()
	}
	return b, nil
}

// Parse 解析并校验 band YAML
func Parse(raw []byte) (*Bands, error) {
	var b Bands
	if err := yaml.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("解析 YAML 失败: %w", err)
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}
