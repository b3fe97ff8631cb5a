package main

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"ipmicore/mc"
)

type versionResponse struct {
	Version string `json:"version"`
}

func (s *server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(versionResponse{Version: s.version})
}

type mcView struct {
	Addr      string `json:"addr"`
	IsBMC     bool   `json:"isBMC"`
	Channel   uint8  `json:"channel"`
	McNum     uint8  `json:"mcNum"`
	InBMCList bool   `json:"inBMCList"`

	DeviceID       uint8  `json:"deviceId"`
	DeviceRev      uint8  `json:"deviceRev"`
	IPMIVersion    string `json:"ipmiVersion"`
	ManufacturerID uint32 `json:"manufacturerId"`
	ProductID      uint16 `json:"productId"`
}

func newMCView(m *mc.MC) mcView {
	return mcView{
		Addr:           m.Addr.String(),
		IsBMC:          m.IsBMC,
		Channel:        m.Channel,
		McNum:          m.McNum,
		InBMCList:      m.InBMCList,
		DeviceID:       m.DeviceID.DeviceID,
		DeviceRev:      m.DeviceID.DeviceRev,
		IPMIVersion:    formatIPMIVersion(m.DeviceID.IPMIMajor, m.DeviceID.IPMIMinor),
		ManufacturerID: m.DeviceID.ManufacturerID,
		ProductID:      m.DeviceID.ProductID,
	}
}

func formatIPMIVersion(major, minor uint8) string {
	return strconv.Itoa(int(major)) + "." + strconv.Itoa(int(minor))
}

type channelView struct {
	Index    int   `json:"index"`
	Medium   uint8 `json:"medium"`
	Protocol uint8 `json:"protocol"`
}

type topologyResponse struct {
	State      string        `json:"state"`
	BMC        mcView        `json:"bmc"`
	Channels   []channelView `json:"channels"`
	Satellites []mcView      `json:"satellites"`
}

func (s *server) handleTopology(w http.ResponseWriter, r *http.Request) {
	var channels []channelView
	for i, c := range s.bmc.Channels {
		if c.Medium == 0 && c.Protocol == 0 {
			continue
		}
		channels = append(channels, channelView{Index: i, Medium: c.Medium, Protocol: c.Protocol})
	}

	sats := s.bmc.MCs()
	satViews := make([]mcView, len(sats))
	for i, m := range sats {
		satViews[i] = newMCView(m)
	}

	resp := topologyResponse{
		State:      s.bmc.State,
		BMC:        newMCView(s.bmc.Self()),
		Channels:   channels,
		Satellites: satViews,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (s *server) handleMCEventLog(w http.ResponseWriter, r *http.Request) {
	addr := mux.Vars(r)["addr"]

	content, err := s.eventLog.GetCurrentLogContent(addr)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write(content)
}
