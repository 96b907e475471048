package genicam

import (
	"context"
	"strings"
	"testing"
)

const testXML = `<?xml version="1.0"?>
<RegisterDescription>
  <Category Name="Root">
    <pFeature>Width</pFeature>
    <pFeature>PixelFormat</pFeature>
  </Category>
  <Integer Name="Width">
    <ToolTip>Image width in pixels</ToolTip>
    <Visibility>Expert</Visibility>
    <AccessMode>RW</AccessMode>
    <pValue>WidthReg</pValue>
    <Min>1</Min>
    <Max>4096</Max>
  </Integer>
  <IntReg Name="WidthReg">
    <Address>0x100</Address>
    <Length>4</Length>
    <AccessMode>RW</AccessMode>
    <Sign>Unsigned</Sign>
    <Endianness>BigEndian</Endianness>
  </IntReg>
  <Enumeration Name="PixelFormat">
    <AccessMode>RW</AccessMode>
    <pValue>PixelFormatReg</pValue>
    <EnumEntry Name="Mono8">
      <Value>1</Value>
    </EnumEntry>
    <EnumEntry Name="Mono16">
      <Value>2</Value>
    </EnumEntry>
  </Enumeration>
  <IntReg Name="PixelFormatReg">
    <Address>0x200</Address>
    <Length>4</Length>
    <AccessMode>RW</AccessMode>
  </IntReg>
</RegisterDescription>
`

func TestParseXMLBuildsNamedFeatureTree(t *testing.T) {
	p := newMemPort(1024)
	d := NewDocument(p, nil)
	if err := d.ParseXML(strings.NewReader(testXML)); err != nil {
		t.Fatalf("ParseXML: %v", err)
	}

	width, err := d.NodeByName("Width")
	if err != nil {
		t.Fatalf("NodeByName(Width): %v", err)
	}
	if width.Kind != KindInteger {
		t.Fatalf("Width.Kind = %v, want KindInteger", width.Kind)
	}
	if width.ToolTip != "Image width in pixels" {
		t.Fatalf("Width.ToolTip = %q, want %q", width.ToolTip, "Image width in pixels")
	}
	if width.Visibility != VisibilityExpert {
		t.Fatalf("Width.Visibility = %v, want VisibilityExpert", width.Visibility)
	}

	ctx := context.Background()
	if err := d.SetIntegerValue(ctx, width, 1920); err != nil {
		t.Fatalf("SetIntegerValue(Width, 1920): %v", err)
	}
	got, err := d.IntegerValue(ctx, width)
	if err != nil {
		t.Fatalf("IntegerValue(Width): %v", err)
	}
	if got != 1920 {
		t.Fatalf("IntegerValue(Width) = %d, want 1920", got)
	}
	if p.data[0x100] != 0 || p.data[0x103] != byte(1920&0xff) {
		t.Fatalf("WidthReg backing bytes = %x, want big-endian 1920 at 0x100", p.data[0x100:0x104])
	}

	pf, err := d.NodeByName("PixelFormat")
	if err != nil {
		t.Fatalf("NodeByName(PixelFormat): %v", err)
	}
	if len(pf.EnumEntries) != 2 {
		t.Fatalf("PixelFormat.EnumEntries = %d entries, want 2", len(pf.EnumEntries))
	}
	if err := d.SetStringValue(ctx, pf, "Mono16"); err != nil {
		t.Fatalf("SetStringValue(PixelFormat, Mono16): %v", err)
	}
	name, err := d.StringValue(ctx, pf)
	if err != nil {
		t.Fatalf("StringValue(PixelFormat): %v", err)
	}
	if name != "Mono16" {
		t.Fatalf("StringValue(PixelFormat) = %q, want Mono16", name)
	}
}

func TestParseXMLRejectsMalformedDocument(t *testing.T) {
	p := newMemPort(16)
	d := NewDocument(p, nil)
	if err := d.ParseXML(strings.NewReader("<Integer Name=\"X\">")); err == nil {
		t.Fatal("ParseXML on an unterminated document should fail")
	}
}
